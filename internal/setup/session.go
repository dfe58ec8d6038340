// Package setup wires the geocoder, parcel loader, selection engine and
// workflow into one project setup session.
package setup

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/boundary"
	"github.com/sells-group/siteplan/internal/loader"
	"github.com/sells-group/siteplan/internal/mapview"
	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/internal/parcel"
	"github.com/sells-group/siteplan/internal/selection"
	"github.com/sells-group/siteplan/internal/workflow"
	"github.com/sells-group/siteplan/pkg/geocode"
)

// Geocoder resolves free text and wraps manual coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, description string) (geocode.Result, bool)
	ResolveCoords(lat, lng float64) geocode.Result
}

// viewportSetter is implemented by renderers that accept client-reported
// viewports, such as mapview.Recording.
type viewportSetter interface {
	SetViewport(v mapview.Viewport)
}

// Options holds the collaborators and tuning for a Session.
type Options struct {
	Geocoder  Geocoder
	Source    parcel.Source
	Renderer  mapview.Renderer
	Dissolver boundary.Dissolver
	Store     boundary.Store
	Sink      monitoring.Sink

	MinZoom        float64
	Debounce       time.Duration
	FetchTimeout   time.Duration
	SaveTimeout    time.Duration
	DocumentIngest bool
}

// Session is one user's project setup. It owns the viewport, the selection
// and the workflow state.
type Session struct {
	projectID string
	geocoder  Geocoder
	renderer  mapview.Renderer
	loader    *loader.Loader
	selection *selection.Engine
	workflow  *workflow.Workflow
	sink      monitoring.Sink
	log       *zap.Logger

	mu         sync.Mutex
	lastClick  *mapview.LatLng
	lastResult *geocode.Result
}

// New creates a Session for projectID.
func New(projectID string, opts Options) *Session {
	s := &Session{
		projectID: projectID,
		geocoder:  opts.Geocoder,
		renderer:  opts.Renderer,
		sink:      opts.Sink,
		log:       zap.L().With(zap.String("component", "setup"), zap.String("project_id", projectID)),
	}

	loaderOpts := []loader.Option{loader.WithSink(opts.Sink)}
	if opts.MinZoom > 0 {
		loaderOpts = append(loaderOpts, loader.WithMinZoom(opts.MinZoom))
	}
	if opts.Debounce > 0 {
		loaderOpts = append(loaderOpts, loader.WithDebounce(opts.Debounce))
	}
	if opts.FetchTimeout > 0 {
		loaderOpts = append(loaderOpts, loader.WithFetchTimeout(opts.FetchTimeout))
	}
	s.loader = loader.New(opts.Source, opts.Renderer, loaderOpts...)
	s.selection = selection.New(opts.Renderer, opts.Sink)

	wfOpts := []workflow.Option{
		workflow.WithSink(opts.Sink),
		workflow.WithDocumentIngest(opts.DocumentIngest),
		workflow.WithHint(s.hint),
	}
	if opts.SaveTimeout > 0 {
		wfOpts = append(wfOpts, workflow.WithSaveTimeout(opts.SaveTimeout))
	}
	s.workflow = workflow.New(projectID, s.selection, opts.Dissolver, opts.Store, wfOpts...)

	if err := s.selection.Refresh(); err != nil {
		s.log.Warn("initial selection style failed", zap.Error(err))
	}
	return s
}

// ProjectID returns the session's project.
func (s *Session) ProjectID() string { return s.projectID }

// Search geocodes text and flies the map there when the renderer can.
func (s *Session) Search(ctx context.Context, text string) (geocode.Result, error) {
	if strings.TrimSpace(text) == "" {
		return geocode.Result{}, apperr.Validation("enter a location to search")
	}
	res, ok := s.geocoder.Resolve(ctx, text)
	if !ok {
		monitoring.Emit(s.sink, monitoring.EventGeocodeMissed, monitoring.SeverityNotice,
			"Location not found. Try an address or coordinates.", map[string]any{"query": text})
		return geocode.Result{}, eris.Wrapf(apperr.ErrLocationNotFound, "setup: %q", text)
	}
	s.focus(res)
	return res, nil
}

// Locate centres the map on user-supplied coordinates.
func (s *Session) Locate(lat, lng float64) (geocode.Result, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return geocode.Result{}, apperr.Validation("coordinates out of range")
	}
	res := s.geocoder.ResolveCoords(lat, lng)
	s.focus(res)
	return res, nil
}

func (s *Session) focus(res geocode.Result) {
	s.mu.Lock()
	s.lastResult = &res
	s.mu.Unlock()

	cam, ok := s.renderer.(mapview.Camera)
	if !ok {
		return
	}
	center := mapview.LatLng{Lat: res.Latitude, Lng: res.Longitude}
	if err := cam.FlyTo(center, float64(geocode.ZoomFor(res))); err != nil {
		s.log.Warn("fly to result failed", zap.Error(err))
		return
	}
	s.loader.ViewportChanged(s.renderer.Viewport())
}

// ViewportChanged records a client pan or zoom and schedules a parcel load.
func (s *Session) ViewportChanged(vp mapview.Viewport) {
	if vs, ok := s.renderer.(viewportSetter); ok {
		vs.SetViewport(vp)
	}
	s.loader.ViewportChanged(vp)
}

// LoadParcels loads parcels for the current viewport immediately.
func (s *Session) LoadParcels(ctx context.Context) ([]parcel.Feature, error) {
	return s.loader.LoadForViewport(ctx, s.renderer.Viewport())
}

// ClickResult describes what a map click did.
type ClickResult struct {
	Hit       bool                `json:"hit"`
	Key       string              `json:"apn,omitempty"`
	Selected  bool                `json:"selected"`
	Aggregate selection.Aggregate `json:"aggregate"`
}

// Click toggles the topmost parcel under pt. at is the geographic position of
// the click and is kept as the reverse geocoding fallback for the boundary.
func (s *Session) Click(pt mapview.ScreenPoint, at mapview.LatLng) (ClickResult, error) {
	s.mu.Lock()
	s.lastClick = &at
	s.mu.Unlock()

	hits, err := s.renderer.QueryFeaturesAtPoint(pt, []string{mapview.ParcelFillLayer})
	if err != nil {
		return ClickResult{}, eris.Wrap(err, "setup: query features at click")
	}
	if len(hits) == 0 {
		return ClickResult{Aggregate: s.selection.Aggregate()}, nil
	}

	f, err := parcel.FromGeoJSON(hits[0])
	if err != nil {
		return ClickResult{}, err
	}
	if loaded, ok := s.loader.Lookup(f.Key); ok {
		f = loaded
	}
	selected, err := s.selection.Toggle(f.Key, f)
	return ClickResult{Hit: true, Key: f.Key, Selected: selected, Aggregate: s.selection.Aggregate()}, err
}

// Toggle selects or deselects a parcel by key. The parcel must be rendered
// or already selected.
func (s *Session) Toggle(key string) (ClickResult, error) {
	f, ok := s.loader.Lookup(key)
	if !ok {
		for _, d := range s.selection.Details() {
			if d.Key == key {
				f, ok = d, true
				break
			}
		}
	}
	if !ok {
		return ClickResult{}, apperr.Validation("parcel " + key + " is not loaded")
	}
	selected, err := s.selection.Toggle(key, f)
	return ClickResult{Hit: true, Key: key, Selected: selected, Aggregate: s.selection.Aggregate()}, err
}

// ClearSelection deselects every parcel.
func (s *Session) ClearSelection() error {
	return s.selection.Clear()
}

// ChooseStructure completes the first workflow step.
func (s *Session) ChooseStructure(structureType string) error {
	return s.workflow.ChooseStructure(structureType)
}

// EnterStep moves the workflow to step when it is reachable.
func (s *Session) EnterStep(step workflow.Step) error {
	return s.workflow.Enter(step)
}

// Confirm dissolves and saves the selection as the project boundary.
func (s *Session) Confirm(ctx context.Context) (*boundary.Saved, error) {
	return s.workflow.ConfirmBoundary(ctx)
}

// CompleteIngest marks document ingest done.
func (s *Session) CompleteIngest() error {
	return s.workflow.CompleteIngest()
}

// Selection exposes the selection engine's read accessors.
func (s *Session) Selection() *selection.Engine { return s.selection }

// Workflow exposes the workflow state machine.
func (s *Session) Workflow() *workflow.Workflow { return s.workflow }

// Snapshot is the session state reported to clients.
type Snapshot struct {
	ProjectID  string              `json:"project_id"`
	Workflow   workflow.State      `json:"workflow"`
	Selected   []string            `json:"selected"`
	Aggregate  selection.Aggregate `json:"aggregate"`
	Viewport   mapview.Viewport    `json:"viewport"`
	Rendered   int                 `json:"rendered"`
	LastResult *geocode.Result     `json:"last_result,omitempty"`
	LastClick  *mapview.LatLng     `json:"last_click,omitempty"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	lastResult, lastClick := s.lastResult, s.lastClick
	s.mu.Unlock()
	return Snapshot{
		ProjectID:  s.projectID,
		Workflow:   s.workflow.Snapshot(),
		Selected:   s.selection.Keys(),
		Aggregate:  s.selection.Aggregate(),
		Viewport:   s.renderer.Viewport(),
		Rendered:   len(s.loader.Rendered()),
		LastResult: lastResult,
		LastClick:  lastClick,
	}
}

// Close stops background parcel loads.
func (s *Session) Close() {
	s.loader.Close()
}

func (s *Session) hint() boundary.Hint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastClick == nil {
		return boundary.Hint{}
	}
	c := *s.lastClick
	return boundary.Hint{LastClick: &c}
}
