// Package loader keeps the rendered parcel layer in step with the map
// viewport: it gates on zoom, debounces viewport bursts, and discards replies
// for viewports that are no longer current.
package loader

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/mapview"
	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/internal/parcel"
)

// Defaults applied by New.
const (
	DefaultMinZoom      = 10
	DefaultDebounce     = 500 * time.Millisecond
	DefaultFetchTimeout = 10 * time.Second
)

// LoadHook observes the outcome of every debounced load.
type LoadHook func(vp mapview.Viewport, features []parcel.Feature, err error)

// Option configures a Loader.
type Option func(*Loader)

// WithMinZoom sets the zoom below which no parcels are fetched.
func WithMinZoom(z float64) Option { return func(l *Loader) { l.minZoom = z } }

// WithDebounce sets the quiet period before a viewport change triggers a fetch.
func WithDebounce(d time.Duration) Option { return func(l *Loader) { l.debounce = d } }

// WithFetchTimeout bounds each source call. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option { return func(l *Loader) { l.timeout = d } }

// WithSink sets the event sink for notices.
func WithSink(s monitoring.Sink) Option { return func(l *Loader) { l.sink = s } }

// WithLoadHook registers a callback run after each debounced load.
func WithLoadHook(h LoadHook) Option { return func(l *Loader) { l.hook = h } }

// Loader fetches parcels for the current viewport and pushes them to the
// renderer's parcel source.
type Loader struct {
	source   parcel.Source
	renderer mapview.Renderer
	sink     monitoring.Sink
	hook     LoadHook
	minZoom  float64
	debounce time.Duration
	timeout  time.Duration
	log      *zap.Logger

	// base is cancelled by Close and parents debounced fetches.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	seq      uint64
	rendered []parcel.Rendered
	timer    *time.Timer
	closed   bool
}

// New creates a Loader over source that renders into renderer.
func New(source parcel.Source, renderer mapview.Renderer, opts ...Option) *Loader {
	l := &Loader{
		source:   source,
		renderer: renderer,
		minZoom:  DefaultMinZoom,
		debounce: DefaultDebounce,
		timeout:  DefaultFetchTimeout,
		log:      zap.L().With(zap.String("component", "loader")),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.base, l.cancel = context.WithCancel(context.Background())
	return l
}

// LoadForViewport fetches and renders parcels for vp. Below the minimum zoom
// it clears the rendered set without calling the source. If a newer load
// starts before this one returns, the reply is dropped with ErrSuperseded.
// On source failure the previously rendered parcels stay on the map. Rows
// repeating a business key are dropped, keeping the first.
func (l *Loader) LoadForViewport(ctx context.Context, vp mapview.Viewport) ([]parcel.Feature, error) {
	l.mu.Lock()
	l.seq++
	tag := l.seq
	l.mu.Unlock()

	if vp.Zoom < l.minZoom {
		return nil, l.clear(tag, vp)
	}

	fetchCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	features, fetchErr := l.source.ParcelsInBBox(fetchCtx, vp.SouthWest, vp.NorthEast)

	l.mu.Lock()
	defer l.mu.Unlock()

	if tag != l.seq {
		monitoring.Emit(l.sink, monitoring.EventParcelLoadStale, monitoring.SeverityDebug,
			"discarded parcels for a stale viewport", map[string]any{"seq": tag, "current": l.seq})
		return nil, eris.Wrapf(apperr.ErrSuperseded, "loader: load %d", tag)
	}

	if fetchErr != nil {
		l.log.Warn("parcel fetch failed, keeping rendered parcels",
			zap.Int("rendered", len(l.rendered)), zap.Error(fetchErr))
		monitoring.Emit(l.sink, monitoring.EventParcelFetchFailed, monitoring.SeverityNotice,
			"Parcels could not be loaded for this area", map[string]any{"error": fetchErr.Error()})
		return nil, eris.Wrapf(apperr.ErrParcelFetchFailed, "loader: %v", fetchErr)
	}

	kept := make([]parcel.Feature, 0, len(features))
	rendered := make([]parcel.Rendered, 0, len(features))
	seen := make(map[string]bool, len(features))
	duplicates := 0
	for _, f := range features {
		if err := f.Validate(); err != nil {
			l.log.Debug("dropping parcel", zap.Error(err))
			continue
		}
		// One parcel per business key; the first row the source returns wins.
		if seen[f.Key] {
			duplicates++
			continue
		}
		seen[f.Key] = true
		kept = append(kept, f)
		rendered = append(rendered, parcel.Rendered{Feature: f, RenderID: int64(len(rendered) + 1)})
	}

	if err := l.renderer.AddOrReplaceSource(mapview.ParcelSource, parcel.Collection(rendered)); err != nil {
		return nil, eris.Wrap(err, "loader: push parcels")
	}
	l.rendered = rendered

	monitoring.Emit(l.sink, monitoring.EventParcelsLoaded, monitoring.SeverityDebug,
		"parcels loaded", map[string]any{
			"count":      len(rendered),
			"dropped":    len(features) - len(kept),
			"duplicates": duplicates,
			"zoom":       vp.Zoom,
		})
	return kept, nil
}

func (l *Loader) clear(tag uint64, vp mapview.Viewport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tag != l.seq {
		return eris.Wrapf(apperr.ErrSuperseded, "loader: clear %d", tag)
	}
	l.rendered = nil
	if err := l.renderer.AddOrReplaceSource(mapview.ParcelSource, parcel.Collection(nil)); err != nil {
		return eris.Wrap(err, "loader: clear parcels")
	}
	monitoring.Emit(l.sink, monitoring.EventParcelsCleared, monitoring.SeverityDebug,
		"zoom below parcel threshold", map[string]any{"zoom": vp.Zoom, "min_zoom": l.minZoom})
	return nil
}

// ViewportChanged schedules a load for vp after the debounce period. A later
// call within the period replaces the pending one.
func (l *Loader) ViewportChanged(vp mapview.Viewport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.debounce, func() {
		features, err := l.LoadForViewport(l.base, vp)
		if l.hook != nil {
			l.hook(vp, features, err)
		}
	})
}

// Rendered returns a copy of the parcels currently on the map.
func (l *Loader) Rendered() []parcel.Rendered {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]parcel.Rendered(nil), l.rendered...)
}

// Lookup returns the rendered parcel with key.
func (l *Loader) Lookup(key string) (parcel.Feature, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.rendered {
		if r.Key == key {
			return r.Feature, true
		}
	}
	return parcel.Feature{}, false
}

// Close stops the pending debounce timer and cancels in-flight debounced
// fetches. Later ViewportChanged calls are ignored.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.cancel()
}
