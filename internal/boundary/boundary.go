// Package boundary turns a parcel selection into a single project boundary
// with derived metadata, and persists it.
package boundary

import (
	"context"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/mapview"
	"github.com/sells-group/siteplan/internal/parcel"
	"github.com/sells-group/siteplan/pkg/geocode"
)

// Boundary is the dissolved outline of a selection plus its metadata.
// Totals always come from parcel attributes, never from geometry.
type Boundary struct {
	Geometry    *geom.Polygon `json:"-"`
	TotalAcres  float64       `json:"total_acres"`
	TotalValue  float64       `json:"total_value"`
	ParcelCount int           `json:"parcel_count"`
	PrimaryKey  string        `json:"primary_parcel"`
	County      string        `json:"county,omitempty"`
	City        string        `json:"city,omitempty"`
	CensusTract string        `json:"census_tract,omitempty"`
	ComputedAt  time.Time     `json:"computed_at"`
}

// Hint carries session context the dissolver may fall back on.
type Hint struct {
	// LastClick is where the user last clicked the map, if anywhere.
	LastClick *mapview.LatLng
}

// Locator is the reverse geocoding and census lookup the dissolver uses for
// metadata. *geocode.Resolver satisfies it.
type Locator interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*geocode.ReverseResult, error)
	CensusTract(ctx context.Context, lat, lng float64) (*geocode.Tract, error)
}

// Dissolver merges selected parcels into one Boundary.
type Dissolver interface {
	Dissolve(ctx context.Context, details []parcel.Feature, hint Hint) (*Boundary, error)
}

// BBoxDissolver approximates the union of the selected parcels with their
// common bounding box. The box always contains every parcel.
type BBoxDissolver struct {
	locator Locator
	now     func() time.Time
	log     *zap.Logger
}

// NewBBoxDissolver creates a BBoxDissolver. locator may be nil, in which case
// metadata comes only from parcel attributes.
func NewBBoxDissolver(locator Locator) *BBoxDissolver {
	return &BBoxDissolver{
		locator: locator,
		now:     time.Now,
		log:     zap.L().With(zap.String("component", "boundary")),
	}
}

// Dissolve implements Dissolver.
func (d *BBoxDissolver) Dissolve(ctx context.Context, details []parcel.Feature, hint Hint) (*Boundary, error) {
	if len(details) == 0 {
		return nil, apperr.Validation("select at least one parcel")
	}

	bounds := geom.NewBounds(geom.XY)
	for _, f := range details {
		if f.Geometry != nil {
			bounds.Extend(f.Geometry)
		}
	}
	if bounds.IsEmpty() {
		return nil, apperr.Validation("selected parcels have no geometry")
	}

	envelope := bounds.Polygon().SetSRID(4326)

	totals := parcel.Summarize(details)
	b := &Boundary{
		Geometry:    envelope,
		TotalAcres:  totals.TotalAcres,
		TotalValue:  totals.TotalValue,
		ParcelCount: totals.Count,
		PrimaryKey:  totals.PrimaryKey,
		ComputedAt:  d.now().UTC(),
	}
	if primary, ok := parcel.Primary(details); ok {
		b.County = primary.Attributes.County
		b.City = primary.Attributes.SiteCity
	}

	d.enrich(ctx, b, bounds, hint)
	return b, nil
}

// enrich fills county/city from the last click when the primary parcel lacks
// them, and looks up the census tract of the envelope center. Both lookups
// run concurrently; failures leave the fields empty.
func (d *BBoxDissolver) enrich(ctx context.Context, b *Boundary, bounds *geom.Bounds, hint Hint) {
	if d.locator == nil {
		return
	}

	var (
		rev   *geocode.ReverseResult
		tract *geocode.Tract
	)
	g, gctx := errgroup.WithContext(ctx)

	if (b.County == "" || b.City == "") && hint.LastClick != nil {
		click := *hint.LastClick
		g.Go(func() error {
			r, err := d.locator.ReverseGeocode(gctx, click.Lat, click.Lng)
			if err != nil {
				d.log.Debug("reverse geocode of last click failed", zap.Error(err))
				return nil
			}
			rev = r
			return nil
		})
	}

	centerLat := (bounds.Min(1) + bounds.Max(1)) / 2
	centerLng := (bounds.Min(0) + bounds.Max(0)) / 2
	g.Go(func() error {
		t, err := d.locator.CensusTract(gctx, centerLat, centerLng)
		if err != nil {
			d.log.Debug("census tract lookup failed", zap.Error(err))
			return nil
		}
		tract = t
		return nil
	})

	_ = g.Wait()

	if rev != nil {
		if b.County == "" {
			b.County = rev.County
		}
		if b.City == "" {
			b.City = rev.City
		}
	}
	if tract != nil {
		b.CensusTract = tract.FullTractFIPS
	}
}
