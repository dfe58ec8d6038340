package parcel

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/siteplan/internal/db"
	"github.com/sells-group/siteplan/internal/mapview"
)

// DefaultTable is the parcel table created by the migrations.
const DefaultTable = "parcels.parcels"

var qualifiedTable = regexp.MustCompile(`^[a-z_][a-z0-9_]*\.[a-z_][a-z0-9_]*$`)

var parcelColumns = []string{
	"apn", "owner", "site_address", "site_city", "county",
	"gross_acres", "appraised_value", "market_value",
	"conveyance_name", "use_code", "use_description", "geom",
}

// PostGISSource queries parcels from a PostGIS table.
type PostGISSource struct {
	pool  db.Pool
	table string
	limit int
}

// NewPostGISSource creates a source over table ("schema.name"). limit caps
// the rows returned per viewport; zero means 5000.
func NewPostGISSource(pool db.Pool, table string, limit int) (*PostGISSource, error) {
	if table == "" {
		table = DefaultTable
	}
	if !qualifiedTable.MatchString(table) {
		return nil, eris.Errorf("parcel: invalid table name %q", table)
	}
	if limit <= 0 {
		limit = 5000
	}
	return &PostGISSource{pool: pool, table: table, limit: limit}, nil
}

// ParcelsInBBox implements Source.
func (s *PostGISSource) ParcelsInBBox(ctx context.Context, sw, ne mapview.LatLng) ([]Feature, error) {
	sql := fmt.Sprintf(`
		SELECT apn, owner, site_address, site_city, county,
		       gross_acres, appraised_value, market_value,
		       conveyance_name, use_code, use_description, ST_AsBinary(geom)
		FROM %s
		WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY apn
		LIMIT $5`, s.table)

	rows, err := s.pool.Query(ctx, sql, sw.Lng, sw.Lat, ne.Lng, ne.Lat, s.limit)
	if err != nil {
		return nil, eris.Wrap(err, "parcel: query bbox")
	}
	defer rows.Close()

	var out []Feature
	skipped := 0
	for rows.Next() {
		var (
			f                                     Feature
			owner, addr, city, county, conveyance *string
			useCode, useDesc                      *string
			geomWKB                               []byte
		)
		if err := rows.Scan(
			&f.Key, &owner, &addr, &city, &county,
			&f.Attributes.GrossAcres, &f.Attributes.AppraisedValue, &f.Attributes.MarketValue,
			&conveyance, &useCode, &useDesc, &geomWKB,
		); err != nil {
			return nil, eris.Wrap(err, "parcel: scan bbox row")
		}
		f.Attributes.Owner = deref(owner)
		f.Attributes.SiteAddress = deref(addr)
		f.Attributes.SiteCity = deref(city)
		f.Attributes.County = deref(county)
		f.Attributes.ConveyanceName = deref(conveyance)
		f.Attributes.UseCode = deref(useCode)
		f.Attributes.UseDescription = deref(useDesc)

		g, err := wkb.Unmarshal(geomWKB)
		if err != nil {
			skipped++
			continue
		}
		f.Geometry = g
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "parcel: iterate bbox rows")
	}
	if skipped > 0 {
		zap.L().Debug("parcel: skipped rows with undecodable geometry",
			zap.String("table", s.table), zap.Int("skipped", skipped))
	}
	return out, nil
}

// ImportOptions tunes Import.
type ImportOptions struct {
	Table     string
	BatchSize int
	// Concurrency is the number of batches upserted in parallel.
	Concurrency int
}

// Import upserts features into the parcel table keyed by apn, in parallel
// batches. It returns the number of rows written.
func Import(ctx context.Context, pool db.Pool, features []Feature, opts ImportOptions) (int64, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if !qualifiedTable.MatchString(opts.Table) {
		return 0, eris.Errorf("parcel: invalid table name %q", opts.Table)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}

	rows := make([][]any, 0, len(features))
	for _, f := range features {
		row, err := importRow(f)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	cfg := db.UpsertConfig{
		Table:        opts.Table,
		Columns:      parcelColumns,
		ConflictKeys: []string{"apn"},
		TouchColumn:  "updated_at",
	}

	results := make([]int64, (len(rows)+opts.BatchSize-1)/opts.BatchSize)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := 0; i < len(results); i++ {
		start := i * opts.BatchSize
		end := min(start+opts.BatchSize, len(rows))
		g.Go(func() error {
			n, err := db.BulkUpsert(gctx, pool, cfg, rows[start:end])
			if err != nil {
				return eris.Wrapf(err, "parcel: import batch %d", i)
			}
			results[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, n := range results {
		total += n
	}
	return total, nil
}

func importRow(f Feature) ([]any, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var g geom.T
	switch t := f.Geometry.(type) {
	case *geom.Polygon:
		g = t.Clone().SetSRID(4326)
	case *geom.MultiPolygon:
		g = t.Clone().SetSRID(4326)
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "parcel %s: encode geometry", f.Key)
	}
	a := f.Attributes
	return []any{
		f.Key, a.Owner, a.SiteAddress, a.SiteCity, a.County,
		a.GrossAcres, a.AppraisedValue, a.MarketValue,
		a.ConveyanceName, a.UseCode, a.UseDescription, data,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
