package boundary

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/siteplan/internal/parcel"
)

// SQLiteStore persists boundaries in a local SQLite file. Geometries are
// stored as WKB blobs.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the database at dsn and configures WAL mode.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS project_boundaries (
	project_id     TEXT PRIMARY KEY,
	save_id        TEXT NOT NULL,
	geom           BLOB NOT NULL,
	total_acres    REAL NOT NULL,
	total_value    REAL NOT NULL,
	parcel_count   INTEGER NOT NULL,
	primary_parcel TEXT NOT NULL,
	county         TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	census_tract   TEXT NOT NULL DEFAULT '',
	computed_at    DATETIME NOT NULL,
	saved_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS project_boundary_parcels (
	project_id      TEXT NOT NULL REFERENCES project_boundaries(project_id) ON DELETE CASCADE,
	apn             TEXT NOT NULL,
	position        INTEGER NOT NULL,
	owner           TEXT NOT NULL DEFAULT '',
	site_address    TEXT NOT NULL DEFAULT '',
	site_city       TEXT NOT NULL DEFAULT '',
	county          TEXT NOT NULL DEFAULT '',
	gross_acres     REAL NOT NULL DEFAULT 0,
	appraised_value REAL NOT NULL DEFAULT 0,
	market_value    REAL NOT NULL DEFAULT 0,
	conveyance_name TEXT NOT NULL DEFAULT '',
	use_code        TEXT NOT NULL DEFAULT '',
	use_description TEXT NOT NULL DEFAULT '',
	geom            BLOB,
	PRIMARY KEY (project_id, apn)
);
`

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveProjectBoundary implements Store.
func (s *SQLiteStore) SaveProjectBoundary(ctx context.Context, projectID string, parcels []parcel.Feature, b *Boundary) (*Saved, error) {
	if err := validateSave(projectID, parcels, b); err != nil {
		return nil, err
	}
	outline, err := wkb.Marshal(b.Geometry, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: encode outline")
	}

	saved := &Saved{
		ProjectID: projectID,
		SaveID:    uuid.New().String(),
		Boundary:  *b,
		Parcels:   parcels,
		SavedAt:   s.now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistErr(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"project_boundary_parcels", "project_boundaries"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE project_id = ?`, projectID); err != nil {
			return nil, persistErr(err, "sqlite: delete previous "+table)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_boundaries
			(project_id, save_id, geom, total_acres, total_value, parcel_count,
			 primary_parcel, county, city, census_tract, computed_at, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, saved.SaveID, outline, b.TotalAcres, b.TotalValue, b.ParcelCount,
		b.PrimaryKey, b.County, b.City, b.CensusTract, b.ComputedAt.UTC(), saved.SavedAt,
	)
	if err != nil {
		return nil, persistErr(err, "sqlite: insert boundary")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO project_boundary_parcels
			(project_id, apn, position, owner, site_address, site_city, county,
			 gross_acres, appraised_value, market_value,
			 conveyance_name, use_code, use_description, geom)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, persistErr(err, "sqlite: prepare parcel insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, f := range parcels {
		var g []byte
		if f.Geometry != nil {
			if g, err = wkb.Marshal(f.Geometry, wkb.NDR); err != nil {
				return nil, eris.Wrapf(err, "boundary: encode parcel %s", f.Key)
			}
		}
		a := f.Attributes
		if _, err := stmt.ExecContext(ctx, projectID, f.Key, i, a.Owner, a.SiteAddress, a.SiteCity, a.County,
			a.GrossAcres, a.AppraisedValue, a.MarketValue,
			a.ConveyanceName, a.UseCode, a.UseDescription, g); err != nil {
			return nil, persistErr(err, "sqlite: insert parcel "+f.Key)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, persistErr(err, "sqlite: commit")
	}
	return saved, nil
}

// GetProjectBoundary implements Store.
func (s *SQLiteStore) GetProjectBoundary(ctx context.Context, projectID string) (*Saved, error) {
	saved := &Saved{ProjectID: projectID}
	b := &saved.Boundary
	var outline []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT save_id, geom, total_acres, total_value, parcel_count, primary_parcel,
		       county, city, census_tract, computed_at, saved_at
		FROM project_boundaries WHERE project_id = ?`, projectID,
	).Scan(&saved.SaveID, &outline, &b.TotalAcres, &b.TotalValue, &b.ParcelCount, &b.PrimaryKey,
		&b.County, &b.City, &b.CensusTract, &b.ComputedAt, &saved.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "project %s", projectID)
	}
	if err != nil {
		return nil, persistErr(err, "sqlite: get boundary")
	}

	g, err := wkb.Unmarshal(outline)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: decode outline")
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("boundary: outline is %T, want polygon", g)
	}
	b.Geometry = poly

	rows, err := s.db.QueryContext(ctx, `
		SELECT apn, owner, site_address, site_city, county,
		       gross_acres, appraised_value, market_value,
		       conveyance_name, use_code, use_description, geom
		FROM project_boundary_parcels WHERE project_id = ? ORDER BY position`, projectID)
	if err != nil {
		return nil, persistErr(err, "sqlite: query boundary parcels")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			f       parcel.Feature
			geomWKB []byte
		)
		a := &f.Attributes
		if err := rows.Scan(&f.Key, &a.Owner, &a.SiteAddress, &a.SiteCity, &a.County,
			&a.GrossAcres, &a.AppraisedValue, &a.MarketValue,
			&a.ConveyanceName, &a.UseCode, &a.UseDescription, &geomWKB); err != nil {
			return nil, persistErr(err, "sqlite: scan boundary parcel")
		}
		if len(geomWKB) > 0 {
			if g, err := wkb.Unmarshal(geomWKB); err == nil {
				f.Geometry = g
			}
		}
		saved.Parcels = append(saved.Parcels, f)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err, "sqlite: iterate boundary parcels")
	}
	return saved, nil
}
