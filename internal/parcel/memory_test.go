package parcel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteplan/internal/mapview"
)

func TestMemorySource_ParcelsInBBox(t *testing.T) {
	src, err := NewMemorySource([]Feature{
		testParcel(t, "C", -112.003, 33.001, 1, 1),
		testParcel(t, "A", -112.010, 33.001, 1, 1),
		testParcel(t, "FAR", -111.5, 33.5, 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, src.Len())

	got, err := src.ParcelsInBBox(context.Background(),
		mapview.LatLng{Lat: 33.0, Lng: -112.02}, mapview.LatLng{Lat: 33.01, Lng: -112.0})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Key)
	assert.Equal(t, "C", got[1].Key)
}

func TestMemorySource_UpsertReplaces(t *testing.T) {
	src, err := NewMemorySource(nil)
	require.NoError(t, err)

	require.NoError(t, src.Upsert(testParcel(t, "A", -112, 33, 1, 100)))
	require.NoError(t, src.Upsert(testParcel(t, "A", -100, 40, 2, 200)))
	assert.Equal(t, 1, src.Len())

	f, ok := src.Get("A")
	require.True(t, ok)
	assert.InDelta(t, 200, f.Attributes.MarketValue, 0)

	got, err := src.ParcelsInBBox(context.Background(),
		mapview.LatLng{Lat: 32.9, Lng: -112.1}, mapview.LatLng{Lat: 33.1, Lng: -111.9})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemorySource_RejectsMissingKey(t *testing.T) {
	_, err := NewMemorySource([]Feature{testParcel(t, "", -112, 33, 1, 1)})
	assert.Error(t, err)
}

func TestMemorySource_CancelledContext(t *testing.T) {
	src, err := NewMemorySource(nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.ParcelsInBBox(ctx, mapview.LatLng{}, mapview.LatLng{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadGeoJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcels.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleCollection), 0o644))

	src, err := LoadGeoJSONFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Len())

	_, err = LoadGeoJSONFile(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}
