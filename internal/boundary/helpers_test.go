package boundary

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteplan/internal/parcel"
	"github.com/sells-group/siteplan/pkg/geocode"
)

func square(t *testing.T, minLng, minLat, size float64) *geom.Polygon {
	t.Helper()
	p, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{minLng, minLat}, {minLng, minLat + size}, {minLng + size, minLat + size},
		{minLng + size, minLat}, {minLng, minLat},
	}})
	require.NoError(t, err)
	return p
}

func testParcel(t *testing.T, key string, minLng, minLat, acres, value float64) parcel.Feature {
	t.Helper()
	return parcel.Feature{
		Key:      key,
		Geometry: square(t, minLng, minLat, 0.001),
		Attributes: parcel.Attributes{
			Owner:       "Owner " + key,
			SiteCity:    "Maricopa",
			County:      "Pinal",
			GrossAcres:  acres,
			MarketValue: value,
		},
	}
}

type fakeLocator struct {
	mu       sync.Mutex
	reverse  *geocode.ReverseResult
	tract    *geocode.Tract
	err      error
	reverses []float64
	tracts   int
}

func (f *fakeLocator) ReverseGeocode(_ context.Context, lat, lng float64) (*geocode.ReverseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverses = append(f.reverses, lat, lng)
	return f.reverse, f.err
}

func (f *fakeLocator) CensusTract(context.Context, float64, float64) (*geocode.Tract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracts++
	return f.tract, f.err
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
}
