package boundary

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/siteplan/internal/parcel"
)

func savedFixture(t *testing.T) *Saved {
	details := []parcel.Feature{
		testParcel(t, "A", -112.02, 33.05, 0.25, 50000),
		testParcel(t, "B", -112.01, 33.06, 0.30, 60000),
	}
	return &Saved{ProjectID: "p1", SaveID: "s1", Boundary: *dissolved(t, details), Parcels: details, SavedAt: fixedNow()}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, savedFixture(t)))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)

	parcels, ok := f.Sheet["Parcels"]
	require.True(t, ok)
	require.Len(t, parcels.Rows, 3)
	assert.Equal(t, "APN", parcels.Rows[0].Cells[0].String())
	assert.Equal(t, "A", parcels.Rows[1].Cells[0].String())
	assert.Equal(t, "Owner B", parcels.Rows[2].Cells[1].String())

	summary, ok := f.Sheet["Summary"]
	require.True(t, ok)
	assert.Equal(t, "Primary Parcel", summary.Rows[4].Cells[0].String())
	assert.Equal(t, "B", summary.Rows[4].Cells[1].String())
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, savedFixture(t)))

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry   map[string]any `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 3)
	assert.Equal(t, "boundary", doc.Features[0].Properties["kind"])
	assert.Equal(t, "Polygon", doc.Features[0].Geometry["type"])
	assert.Equal(t, "B", doc.Features[0].Properties["primary_parcel"])
	assert.Equal(t, "A", doc.Features[1].Properties[parcel.KeyProperty])
}
