package parcel

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(t *testing.T, minLng, minLat, size float64) *geom.Polygon {
	t.Helper()
	p, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{minLng, minLat}, {minLng + size, minLat}, {minLng + size, minLat + size},
		{minLng, minLat + size}, {minLng, minLat},
	}})
	require.NoError(t, err)
	return p
}

func testParcel(t *testing.T, key string, minLng, minLat float64, acres, value float64) Feature {
	t.Helper()
	return Feature{
		Key:      key,
		Geometry: square(t, minLng, minLat, 0.001),
		Attributes: Attributes{
			Owner:       "Owner " + key,
			SiteCity:    "Maricopa",
			County:      "Pinal",
			GrossAcres:  acres,
			MarketValue: value,
		},
	}
}
