package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/boundary"
	"github.com/sells-group/siteplan/internal/mapview"
	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/internal/parcel"
	"github.com/sells-group/siteplan/internal/selection"
)

func square(minLng, minLat float64) *geom.Polygon {
	flat := []float64{minLng, minLat, minLng, minLat + 0.001, minLng + 0.001, minLat + 0.001, minLng + 0.001, minLat, minLng, minLat}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

type failingStore struct{ boundary.Store }

func (failingStore) SaveProjectBoundary(context.Context, string, []parcel.Feature, *boundary.Boundary) (*boundary.Saved, error) {
	return nil, errors.New("disk full")
}

func setup(t *testing.T, store boundary.Store, opts ...Option) (*Workflow, *selection.Engine) {
	t.Helper()
	sel := selection.New(mapview.NewRecording(800, 600, mapview.Viewport{Zoom: 14}), nil)
	w := New("p1", sel, boundary.NewBBoxDissolver(nil), store, opts...)
	return w, sel
}

func selectParcel(t *testing.T, sel *selection.Engine, key string) {
	t.Helper()
	_, err := sel.Toggle(key, parcel.Feature{Key: key, Geometry: square(-112.02, 33.05),
		Attributes: parcel.Attributes{GrossAcres: 1, MarketValue: 10}})
	require.NoError(t, err)
}

func TestWorkflow_HappyPathWithoutIngest(t *testing.T) {
	store := boundary.NewMemoryStore()
	rec := monitoring.NewRecorder(0)
	w, sel := setup(t, store, WithSink(rec))

	assert.Equal(t, StepChooseStructure, w.Current())
	require.NoError(t, w.ChooseStructure("single-site"))
	assert.Equal(t, StepSetBoundary, w.Current())

	selectParcel(t, sel, "A")
	saved, err := w.ConfirmBoundary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Boundary.ParcelCount)
	assert.Equal(t, StepNavigate, w.Current())

	_, err = store.GetProjectBoundary(context.Background(), "p1")
	assert.NoError(t, err)

	st := w.Snapshot()
	assert.True(t, st.Done)
	assert.Equal(t, []string{"choose_structure", "set_boundary", "navigate"}, st.Steps)
	assert.Equal(t, []string{"choose_structure", "set_boundary"}, st.Completed)
	assert.Len(t, rec.OfType(monitoring.EventStepChanged), 2)
	assert.Len(t, rec.OfType(monitoring.EventBoundarySaved), 1)
}

func TestWorkflow_ZeroParcelConfirm(t *testing.T) {
	w, _ := setup(t, boundary.NewMemoryStore())
	require.NoError(t, w.ChooseStructure("single-site"))

	_, err := w.ConfirmBoundary(context.Background())
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
	assert.Equal(t, StepSetBoundary, w.Current())
	assert.False(t, w.Completed(StepSetBoundary))
}

func TestWorkflow_PersistenceFailureKeepsStateAndSelection(t *testing.T) {
	w, sel := setup(t, failingStore{})
	require.NoError(t, w.ChooseStructure("single-site"))
	selectParcel(t, sel, "A")

	_, err := w.ConfirmBoundary(context.Background())
	assert.ErrorIs(t, err, apperr.ErrPersistenceFailed)
	assert.Equal(t, StepSetBoundary, w.Current())
	assert.Equal(t, 1, sel.Len())
}

func TestWorkflow_DocumentIngest(t *testing.T) {
	w, sel := setup(t, boundary.NewMemoryStore(), WithDocumentIngest(true))
	require.NoError(t, w.ChooseStructure("portfolio"))
	selectParcel(t, sel, "A")

	_, err := w.ConfirmBoundary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepDocumentIngest, w.Current())

	assert.ErrorIs(t, w.Enter(StepNavigate), ErrStepLocked, "ingest not complete")

	require.NoError(t, w.CompleteIngest())
	assert.Equal(t, StepNavigate, w.Current())
	assert.ErrorIs(t, w.CompleteIngest(), ErrStepLocked)
}

func TestWorkflow_Enter(t *testing.T) {
	w, sel := setup(t, boundary.NewMemoryStore(), WithDocumentIngest(true))

	assert.ErrorIs(t, w.Enter(StepSetBoundary), ErrStepLocked, "current step not completed")
	assert.ErrorIs(t, w.Enter(StepNavigate), ErrStepLocked, "no skipping ahead")
	assert.NoError(t, w.Enter(StepChooseStructure))

	require.NoError(t, w.ChooseStructure("single-site"))
	require.NoError(t, w.Enter(StepChooseStructure), "completed steps stay enterable")
	assert.Equal(t, StepChooseStructure, w.Current())
	require.NoError(t, w.Enter(StepSetBoundary), "successor of a completed current step")

	selectParcel(t, sel, "A")
	_, err := w.ConfirmBoundary(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Enter(StepSetBoundary))
	assert.ErrorIs(t, w.Enter(StepNavigate), ErrStepLocked, "ingest sits between boundary and navigate")
}

func TestWorkflow_EnterStepNotInSequence(t *testing.T) {
	w, _ := setup(t, boundary.NewMemoryStore())
	assert.ErrorIs(t, w.Enter(StepDocumentIngest), ErrStepLocked)
}

func TestWorkflow_ConfirmOutsideSetBoundary(t *testing.T) {
	w, _ := setup(t, boundary.NewMemoryStore())
	_, err := w.ConfirmBoundary(context.Background())
	assert.ErrorIs(t, err, ErrStepLocked)
	assert.ErrorIs(t, w.ChooseStructure(" "), apperr.ErrValidationFailed)
}

func TestParseStep(t *testing.T) {
	s, err := ParseStep("set_boundary")
	require.NoError(t, err)
	assert.Equal(t, StepSetBoundary, s)
	assert.Equal(t, "set_boundary", s.String())

	_, err = ParseStep("bogus")
	assert.Error(t, err)
}
