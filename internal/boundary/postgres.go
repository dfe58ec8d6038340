package boundary

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/siteplan/internal/db"
	"github.com/sells-group/siteplan/internal/parcel"
)

var boundaryParcelColumns = []string{
	"project_id", "apn", "position", "owner", "site_address", "site_city", "county",
	"gross_acres", "appraised_value", "market_value",
	"conveyance_name", "use_code", "use_description", "geom",
}

// PostgresStore persists boundaries to the siteplan schema in PostGIS.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresStore wraps an open pool. Run migrations first.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// SaveProjectBoundary implements Store. The previous boundary and its parcels
// are deleted and the new ones written in one transaction.
func (s *PostgresStore) SaveProjectBoundary(ctx context.Context, projectID string, parcels []parcel.Feature, b *Boundary) (*Saved, error) {
	if err := validateSave(projectID, parcels, b); err != nil {
		return nil, err
	}

	outline, err := ewkb.Marshal(b.Geometry.Clone().SetSRID(4326), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: encode outline")
	}
	rows := make([][]any, 0, len(parcels))
	for i, f := range parcels {
		var g []byte
		if f.Geometry != nil {
			g, err = encodeParcelGeom(f.Geometry)
			if err != nil {
				return nil, eris.Wrapf(err, "boundary: encode parcel %s", f.Key)
			}
		}
		a := f.Attributes
		rows = append(rows, []any{
			projectID, f.Key, i, a.Owner, a.SiteAddress, a.SiteCity, a.County,
			a.GrossAcres, a.AppraisedValue, a.MarketValue,
			a.ConveyanceName, a.UseCode, a.UseDescription, g,
		})
	}

	saved := &Saved{
		ProjectID: projectID,
		SaveID:    uuid.New().String(),
		Boundary:  *b,
		Parcels:   parcels,
		SavedAt:   s.now().UTC(),
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, persistErr(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM siteplan.project_boundaries WHERE project_id = $1`, projectID); err != nil {
		return nil, persistErr(err, "postgres: delete previous boundary")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO siteplan.project_boundaries
			(project_id, save_id, geom, total_acres, total_value, parcel_count,
			 primary_parcel, county, city, census_tract, computed_at, saved_at)
		VALUES ($1, $2, ST_GeomFromEWKB($3), $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		projectID, saved.SaveID, outline, b.TotalAcres, b.TotalValue, b.ParcelCount,
		b.PrimaryKey, b.County, b.City, b.CensusTract, b.ComputedAt, saved.SavedAt,
	)
	if err != nil {
		return nil, persistErr(err, "postgres: insert boundary")
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"siteplan", "project_boundary_parcels"},
		boundaryParcelColumns, pgx.CopyFromRows(rows)); err != nil {
		return nil, persistErr(err, "postgres: copy boundary parcels")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, persistErr(err, "postgres: commit")
	}
	return saved, nil
}

// GetProjectBoundary implements Store.
func (s *PostgresStore) GetProjectBoundary(ctx context.Context, projectID string) (*Saved, error) {
	saved := &Saved{ProjectID: projectID}
	b := &saved.Boundary
	var outline []byte
	err := s.pool.QueryRow(ctx, `
		SELECT save_id, ST_AsBinary(geom), total_acres, total_value, parcel_count,
		       primary_parcel, COALESCE(county, ''), COALESCE(city, ''), COALESCE(census_tract, ''),
		       computed_at, saved_at
		FROM siteplan.project_boundaries
		WHERE project_id = $1`, projectID,
	).Scan(&saved.SaveID, &outline, &b.TotalAcres, &b.TotalValue, &b.ParcelCount,
		&b.PrimaryKey, &b.County, &b.City, &b.CensusTract, &b.ComputedAt, &saved.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "project %s", projectID)
	}
	if err != nil {
		return nil, persistErr(err, "postgres: get boundary")
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

	rows, err := s.pool.Query(ctx, `
		SELECT apn, COALESCE(owner, ''), COALESCE(site_address, ''), COALESCE(site_city, ''), COALESCE(county, ''),
		       gross_acres, appraised_value, market_value,
		       COALESCE(conveyance_name, ''), COALESCE(use_code, ''), COALESCE(use_description, ''),
		       ST_AsBinary(geom)
		FROM siteplan.project_boundary_parcels
		WHERE project_id = $1
		ORDER BY position`, projectID)
	if err != nil {
		return nil, persistErr(err, "postgres: query boundary parcels")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f       parcel.Feature
			geomWKB []byte
		)
		a := &f.Attributes
		if err := rows.Scan(&f.Key, &a.Owner, &a.SiteAddress, &a.SiteCity, &a.County,
			&a.GrossAcres, &a.AppraisedValue, &a.MarketValue,
			&a.ConveyanceName, &a.UseCode, &a.UseDescription, &geomWKB); err != nil {
			return nil, persistErr(err, "postgres: scan boundary parcel")
		}
		if len(geomWKB) > 0 {
			if g, err := wkb.Unmarshal(geomWKB); err == nil {
				f.Geometry = g
			}
		}
		saved.Parcels = append(saved.Parcels, f)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err, "postgres: iterate boundary parcels")
	}
	return saved, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func encodeParcelGeom(g geom.T) ([]byte, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return ewkb.Marshal(t.Clone().SetSRID(4326), ewkb.NDR)
	case *geom.MultiPolygon:
		return ewkb.Marshal(t.Clone().SetSRID(4326), ewkb.NDR)
	default:
		return ewkb.Marshal(g, ewkb.NDR)
	}
}
