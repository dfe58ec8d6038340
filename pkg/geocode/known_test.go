package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKnownTable_Maricopa(t *testing.T) {
	table, err := DefaultKnownTable()
	require.NoError(t, err)
	assert.Positive(t, table.Len())

	res, ok := table.Lookup("corner of Anderson and Farrell Roads, Maricopa, AZ")
	require.True(t, ok)
	assert.InDelta(t, 33.0583, res.Latitude, 0.0001)
	assert.InDelta(t, -112.0147, res.Longitude, 0.0001)
	assert.InDelta(t, 0.95, res.Confidence, 0.0001)
	assert.Equal(t, SourceCache, res.Source)
}

func TestKnownTable_BothDirections(t *testing.T) {
	table, err := ParseKnownTable([]byte(`
locations:
  - name: Anderson and Farrell
    latitude: 1
    longitude: 2
    confidence: 0.9
`))
	require.NoError(t, err)

	_, ok := table.Lookup("ANDERSON AND FARRELL ROADS, MARICOPA")
	assert.True(t, ok, "entry inside text")

	_, ok = table.Lookup("farrell")
	assert.True(t, ok, "text inside entry")

	_, ok = table.Lookup("an")
	assert.False(t, ok, "too short for reverse match")

	_, ok = table.Lookup("   ")
	assert.False(t, ok)

	_, ok = table.Lookup("ellsworth and germann")
	assert.False(t, ok)
}

func TestKnownTable_NilSafe(t *testing.T) {
	var table *KnownTable
	_, ok := table.Lookup("anything")
	assert.False(t, ok)
	assert.Zero(t, table.Len())
}

func TestParseKnownTable_Invalid(t *testing.T) {
	_, err := ParseKnownTable([]byte("locations: [oops"))
	assert.Error(t, err)

	_, err = ParseKnownTable([]byte("locations:\n  - name: road\n    confidence: 0.5\n"))
	assert.ErrorContains(t, err, "empty name")

	_, err = ParseKnownTable([]byte("locations:\n  - name: x place\n    confidence: 1.5\n"))
	assert.ErrorContains(t, err, "outside [0,1]")
}
