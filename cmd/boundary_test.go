package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteplan/internal/boundary"
	"github.com/sells-group/siteplan/internal/parcel"
)

func savedStore(t *testing.T) boundary.Store {
	t.Helper()
	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{-112.02, 33.05}, {-112.02, 33.06}, {-112.01, 33.06}, {-112.01, 33.05}, {-112.02, 33.05},
	}})
	require.NoError(t, err)

	parcels := []parcel.Feature{{
		Key:        "510-12-003",
		Geometry:   poly,
		Attributes: parcel.Attributes{Owner: "Pecos Farms LLC", GrossAcres: 0.3, MarketValue: 60000},
	}}
	b := &boundary.Boundary{
		Geometry:    poly,
		TotalAcres:  0.3,
		TotalValue:  60000,
		ParcelCount: 1,
		PrimaryKey:  "510-12-003",
		County:      "Pinal",
	}

	store := boundary.NewMemoryStore()
	_, err = store.SaveProjectBoundary(t.Context(), "proj-7", parcels, b)
	require.NoError(t, err)
	return store
}

func TestWriteBoundary_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeBoundary(t.Context(), &buf, savedStore(t), "proj-7", "json"))

	var got boundary.Saved
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "proj-7", got.ProjectID)
	assert.Equal(t, 1, got.Boundary.ParcelCount)
	assert.Equal(t, "510-12-003", got.Boundary.PrimaryKey)
}

func TestWriteBoundary_Exports(t *testing.T) {
	store := savedStore(t)

	var gj bytes.Buffer
	require.NoError(t, writeBoundary(t.Context(), &gj, store, "proj-7", "geojson"))
	assert.Contains(t, gj.String(), `"FeatureCollection"`)
	assert.Contains(t, gj.String(), "510-12-003")

	var xl bytes.Buffer
	require.NoError(t, writeBoundary(t.Context(), &xl, store, "proj-7", "xlsx"))
	f, err := xlsx.OpenBinary(xl.Bytes())
	require.NoError(t, err)
	assert.Contains(t, f.Sheet, "Summary")
	assert.Contains(t, f.Sheet, "Parcels")
}

func TestWriteBoundary_Errors(t *testing.T) {
	store := savedStore(t)

	err := writeBoundary(t.Context(), &bytes.Buffer{}, store, "missing", "json")
	assert.True(t, errors.Is(err, boundary.ErrNotFound))

	err = writeBoundary(t.Context(), &bytes.Buffer{}, store, "proj-7", "kml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}
