// Package parcel defines assessor parcel features, the spatial source
// contract used by the viewport loader, and the sources and codecs that feed it.
package parcel

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/mapview"
)

// KeyProperty is the GeoJSON property carrying the business key.
const KeyProperty = "apn"

// Attributes are the assessor fields carried with a parcel.
type Attributes struct {
	Owner          string  `json:"owner"`
	SiteAddress    string  `json:"site_address"`
	SiteCity       string  `json:"site_city"`
	County         string  `json:"county"`
	GrossAcres     float64 `json:"gross_acres"`
	AppraisedValue float64 `json:"appraised_value"`
	MarketValue    float64 `json:"market_value"`
	ConveyanceName string  `json:"conveyance_name"`
	UseCode        string  `json:"use_code"`
	UseDescription string  `json:"use_description"`
}

// Value is the market value, or the appraised value when no positive market
// value is recorded.
func (a Attributes) Value() float64 {
	if a.MarketValue > 0 {
		return a.MarketValue
	}
	return a.AppraisedValue
}

// Feature is one assessor parcel. Key (the assessor parcel number) is its
// only identity.
type Feature struct {
	Key        string     `json:"apn"`
	Geometry   geom.T     `json:"-"`
	Attributes Attributes `json:"attributes"`
}

// Validate rejects features without a business key or a polygonal geometry.
func (f Feature) Validate() error {
	if strings.TrimSpace(f.Key) == "" {
		return eris.Wrap(apperr.ErrMissingBusinessKey, "parcel: validate")
	}
	switch f.Geometry.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return nil
	case nil:
		return eris.Errorf("parcel %s: missing geometry", f.Key)
	default:
		return eris.Errorf("parcel %s: unsupported geometry %T", f.Key, f.Geometry)
	}
}

// Bounds returns the geometry's bounding box, or nil without geometry.
func (f Feature) Bounds() *geom.Bounds {
	if f.Geometry == nil {
		return nil
	}
	return f.Geometry.Bounds()
}

// Rendered is a feature handed to the renderer. RenderID is assigned per load
// and is never used as selection identity.
type Rendered struct {
	Feature
	RenderID int64
}

// Source answers bounding box queries for parcels.
type Source interface {
	ParcelsInBBox(ctx context.Context, sw, ne mapview.LatLng) ([]Feature, error)
}
