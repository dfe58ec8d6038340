package selection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/mapview"
	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/internal/parcel"
)

func p(acres, market, appraised float64) parcel.Feature {
	return parcel.Feature{Attributes: parcel.Attributes{
		GrossAcres: acres, MarketValue: market, AppraisedValue: appraised,
	}}
}

func newEngine() (*Engine, *mapview.Recording) {
	r := mapview.NewRecording(800, 600, mapview.Viewport{Zoom: 14})
	return New(r, monitoring.Nop{}), r
}

func TestAggregate_Example(t *testing.T) {
	e, _ := newEngine()
	_, err := e.Toggle("A", p(0.25, 50000, 0))
	require.NoError(t, err)
	_, err = e.Toggle("B", p(0.30, 60000, 0))
	require.NoError(t, err)

	agg := e.Aggregate()
	assert.Equal(t, 2, agg.Count)
	assert.InDelta(t, 0.55, agg.TotalAcres, 1e-9)
	assert.InDelta(t, 110000, agg.TotalValue, 1e-9)
	assert.Equal(t, "B", agg.PrimaryKey)
}

func TestAggregate_AppraisedFallbackAndTies(t *testing.T) {
	e, _ := newEngine()
	_, _ = e.Toggle("first", p(1, 0, 700))
	_, _ = e.Toggle("second", p(1, -5, 300))

	agg := e.Aggregate()
	assert.InDelta(t, 1000, agg.TotalValue, 1e-9)
	assert.Equal(t, "first", agg.PrimaryKey)
}

func TestToggle_DoubleToggleRestoresState(t *testing.T) {
	e, r := newEngine()
	_, _ = e.Toggle("A", p(1, 1, 0))
	before := e.Aggregate()
	beforeKeys := e.Keys()

	selected, err := e.Toggle("B", p(2, 2, 0))
	require.NoError(t, err)
	assert.True(t, selected)

	selected, err = e.Toggle("B", p(2, 2, 0))
	require.NoError(t, err)
	assert.False(t, selected)

	assert.Equal(t, before, e.Aggregate())
	assert.Equal(t, beforeKeys, e.Keys())
	assert.Equal(t, mapview.AllowList(parcel.KeyProperty, []string{"A"}), r.Filter(mapview.SelectedParcelLayer))
}

func TestToggle_SnapshotsFeature(t *testing.T) {
	e, _ := newEngine()
	f := p(3, 10, 0)
	_, _ = e.Toggle("A", f)
	f.Attributes.GrossAcres = 99

	d := e.Details()
	require.Len(t, d, 1)
	assert.Equal(t, "A", d[0].Key)
	assert.InDelta(t, 3, d[0].Attributes.GrossAcres, 0)
	assert.True(t, e.Contains("A"))
	assert.Equal(t, 1, e.Len())
}

func TestToggle_MissingKey(t *testing.T) {
	e, _ := newEngine()
	_, err := e.Toggle("  ", p(1, 1, 0))
	assert.ErrorIs(t, err, apperr.ErrMissingBusinessKey)
	assert.Zero(t, e.Len())
}

func TestClear_PushesMatchNothing(t *testing.T) {
	e, r := newEngine()
	_, _ = e.Toggle("A", p(1, 1, 0))
	require.NoError(t, e.Clear())

	assert.Zero(t, e.Len())
	assert.Equal(t, Aggregate{}, e.Aggregate())
	assert.True(t, r.Filter(mapview.SelectedParcelLayer).MatchNone)
}

type failingRenderer struct{ mapview.Renderer }

func (failingRenderer) SetLayerFilter(string, mapview.Filter) error {
	return errors.New("style not loaded")
}

func (failingRenderer) AddOrReplaceSource(string, *geojson.FeatureCollection) error { return nil }

func TestToggle_FilterFailureKeepsState(t *testing.T) {
	e := New(failingRenderer{}, nil)
	selected, err := e.Toggle("A", p(1, 1, 0))
	assert.Error(t, err)
	assert.True(t, selected)
	assert.True(t, e.Contains("A"))
}

func TestToggle_ReselectRestoresPosition(t *testing.T) {
	e, r := newEngine()
	_, _ = e.Toggle("A", p(1, 10, 0))
	_, _ = e.Toggle("B", p(1, 20, 0))
	before := e.Aggregate()
	beforeKeys := e.Keys()
	require.Equal(t, "A", before.PrimaryKey)

	selected, err := e.Toggle("A", p(1, 10, 0))
	require.NoError(t, err)
	assert.False(t, selected)
	selected, err = e.Toggle("A", p(5, 999, 0))
	require.NoError(t, err)
	assert.True(t, selected)

	assert.Equal(t, beforeKeys, e.Keys())
	assert.Equal(t, before, e.Aggregate())
	assert.InDelta(t, 1, e.Details()[0].Attributes.GrossAcres, 0, "cached detail restored")
	assert.Equal(t, mapview.AllowList(parcel.KeyProperty, []string{"A", "B"}), r.Filter(mapview.SelectedParcelLayer))
}

func TestToggle_LaterReselectAppends(t *testing.T) {
	e, _ := newEngine()
	_, _ = e.Toggle("A", p(1, 10, 0))
	_, _ = e.Toggle("B", p(1, 20, 0))
	_, _ = e.Toggle("A", p(1, 10, 0))
	_, _ = e.Toggle("C", p(1, 30, 0))
	_, _ = e.Toggle("A", p(1, 10, 0))

	assert.Equal(t, []string{"B", "C", "A"}, e.Keys())
	assert.Equal(t, "B", e.Aggregate().PrimaryKey)
}

func TestRefresh_StylesSelectedLayer(t *testing.T) {
	e, r := newEngine()
	require.NoError(t, e.Refresh())

	paint := r.Snapshot().Paint[mapview.SelectedParcelLayer]
	assert.Equal(t, SelectedFillColor, paint["fill-color"])
	assert.Equal(t, SelectedFillOpacity, paint["fill-opacity"])
	assert.True(t, r.Filter(mapview.SelectedParcelLayer).MatchNone)
}
