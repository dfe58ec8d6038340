// Package selection tracks the parcels a user has picked for a project
// boundary, independent of which parcels are currently rendered.
package selection

import (
	"slices"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/mapview"
	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/internal/parcel"
)

// Aggregate summarises a selection.
type Aggregate struct {
	Count      int     `json:"count"`
	TotalAcres float64 `json:"total_acres"`
	TotalValue float64 `json:"total_value"`
	PrimaryKey string  `json:"primary_key,omitempty"`
}

// Engine holds the selected keys and a snapshot of each selected parcel taken
// at click time. Viewport reloads never touch it.
type Engine struct {
	renderer mapview.Renderer
	sink     monitoring.Sink
	log      *zap.Logger

	mu      sync.Mutex
	order   []string
	details map[string]parcel.Feature
	seq     map[string]uint64
	next    uint64
	// undo holds the last removal so an immediate re-toggle of the same key
	// restores its position and cached detail.
	undo *removal
}

type removal struct {
	key     string
	seq     uint64
	feature parcel.Feature
}

// New creates an Engine that pushes its filter to renderer. renderer may be nil.
func New(renderer mapview.Renderer, sink monitoring.Sink) *Engine {
	return &Engine{
		renderer: renderer,
		sink:     sink,
		log:      zap.L().With(zap.String("component", "selection")),
		details:  make(map[string]parcel.Feature),
		seq:      make(map[string]uint64),
	}
}

// Toggle adds f under key, or removes key if already selected. It reports
// whether key is selected afterwards. Re-selecting the key removed by the
// previous toggle restores its position and its cached detail, so a double
// toggle leaves the selection exactly as it was. The renderer filter is
// refreshed either way; a filter push failure is returned after the state
// change.
func (e *Engine) Toggle(key string, f parcel.Feature) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, eris.Wrap(apperr.ErrMissingBusinessKey, "selection: toggle")
	}

	e.mu.Lock()
	prev, had := e.details[key]
	switch {
	case had:
		e.undo = &removal{key: key, seq: e.seq[key], feature: prev}
		delete(e.details, key)
		delete(e.seq, key)
		e.order = slices.DeleteFunc(e.order, func(k string) bool { return k == key })
	case e.undo != nil && e.undo.key == key:
		e.restoreLocked(*e.undo)
		e.undo = nil
	default:
		e.undo = nil
		f.Key = key
		e.details[key] = f
		e.seq[key] = e.next
		e.next++
		e.order = append(e.order, key)
	}
	keys := slices.Clone(e.order)
	e.mu.Unlock()

	monitoring.Emit(e.sink, monitoring.EventSelectionChanged, monitoring.SeverityDebug,
		"selection changed", map[string]any{"key": key, "selected": !had, "count": len(keys)})
	return !had, e.push(keys)
}

// restoreLocked puts a just-removed key back at its original position.
func (e *Engine) restoreLocked(r removal) {
	e.details[r.key] = r.feature
	e.seq[r.key] = r.seq
	i := slices.IndexFunc(e.order, func(k string) bool { return e.seq[k] > r.seq })
	if i < 0 {
		i = len(e.order)
	}
	e.order = slices.Insert(e.order, i, r.key)
}

// Clear empties the selection and hides the selected-parcel layer.
func (e *Engine) Clear() error {
	e.mu.Lock()
	e.order = nil
	e.details = make(map[string]parcel.Feature)
	e.seq = make(map[string]uint64)
	e.undo = nil
	e.mu.Unlock()

	monitoring.Emit(e.sink, monitoring.EventSelectionChanged, monitoring.SeverityDebug,
		"selection cleared", map[string]any{"count": 0})
	return e.push(nil)
}

// Highlight paint for the selected-parcel layer.
const (
	SelectedFillColor   = "#ff6600"
	SelectedFillOpacity = 0.45
)

// Refresh styles the selected-parcel layer and pushes the current filter
// again, e.g. after the renderer reloads.
func (e *Engine) Refresh() error {
	if e.renderer != nil {
		if err := e.renderer.SetPaintProperty(mapview.SelectedParcelLayer, "fill-color", SelectedFillColor); err != nil {
			return eris.Wrap(err, "selection: style selected layer")
		}
		if err := e.renderer.SetPaintProperty(mapview.SelectedParcelLayer, "fill-opacity", SelectedFillOpacity); err != nil {
			return eris.Wrap(err, "selection: style selected layer")
		}
	}
	return e.push(e.Keys())
}

func (e *Engine) push(keys []string) error {
	if e.renderer == nil {
		return nil
	}
	if err := e.renderer.SetLayerFilter(mapview.SelectedParcelLayer, mapview.AllowList(parcel.KeyProperty, keys)); err != nil {
		e.log.Warn("selected-parcel filter push failed", zap.Error(err))
		return eris.Wrap(err, "selection: push filter")
	}
	return nil
}

// Aggregate sums acres and value over the detail cache. The primary parcel is
// the largest by gross acres; ties go to the earliest selected.
func (e *Engine) Aggregate() Aggregate {
	t := parcel.Summarize(e.Details())
	return Aggregate{
		Count:      t.Count,
		TotalAcres: t.TotalAcres,
		TotalValue: t.TotalValue,
		PrimaryKey: t.PrimaryKey,
	}
}

// Keys returns the selected keys in selection order.
func (e *Engine) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.order)
}

// Details returns the cached parcels in selection order.
func (e *Engine) Details() []parcel.Feature {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]parcel.Feature, 0, len(e.order))
	for _, k := range e.order {
		out = append(out, e.details[k])
	}
	return out
}

// Contains reports whether key is selected.
func (e *Engine) Contains(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.details[key]
	return ok
}

// Len returns the number of selected parcels.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}
