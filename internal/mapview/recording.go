package mapview

import (
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
)

// Recording is an in-memory Renderer and Camera. It keeps the last data,
// filters and paint pushed for each source and layer, and answers point
// queries by hit-testing polygons. It backs the HTTP API and tests.
type Recording struct {
	mu          sync.RWMutex
	width       int
	height      int
	viewport    Viewport
	sources     map[string]*geojson.FeatureCollection
	filters     map[string]Filter
	paint       map[string]map[string]any
	layerSource map[string]string
	flights     int
}

// NewRecording creates a Recording for a width x height canvas with the
// parcel layers registered.
func NewRecording(width, height int, initial Viewport) *Recording {
	return &Recording{
		width:    width,
		height:   height,
		viewport: initial,
		sources:  make(map[string]*geojson.FeatureCollection),
		filters:  make(map[string]Filter),
		paint:    make(map[string]map[string]any),
		layerSource: map[string]string{
			ParcelFillLayer:     ParcelSource,
			ParcelOutlineLayer:  ParcelSource,
			SelectedParcelLayer: ParcelSource,
		},
	}
}

// AddOrReplaceSource implements Renderer.
func (r *Recording) AddOrReplaceSource(name string, data *geojson.FeatureCollection) error {
	if data == nil {
		data = &geojson.FeatureCollection{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = data
	return nil
}

// SetLayerFilter implements Renderer.
func (r *Recording) SetLayerFilter(layerID string, f Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.layerSource[layerID]; !ok {
		return eris.Errorf("mapview: unknown layer %q", layerID)
	}
	r.filters[layerID] = f
	return nil
}

// SetPaintProperty implements Renderer.
func (r *Recording) SetPaintProperty(layerID, prop string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.layerSource[layerID]; !ok {
		return eris.Errorf("mapview: unknown layer %q", layerID)
	}
	if r.paint[layerID] == nil {
		r.paint[layerID] = make(map[string]any)
	}
	r.paint[layerID][prop] = value
	return nil
}

// QueryFeaturesAtPoint implements Renderer. Features hidden by a layer's
// filter are not returned; a feature drawn by several layers is returned once.
func (r *Recording) QueryFeaturesAtPoint(pt ScreenPoint, layers []string) ([]*geojson.Feature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	at := Unproject(r.viewport, pt, r.width, r.height)
	coord := geom.Coord{at.Lng, at.Lat}

	seen := make(map[*geojson.Feature]bool)
	var hits []*geojson.Feature
	for _, layer := range layers {
		src, ok := r.layerSource[layer]
		if !ok {
			return nil, eris.Errorf("mapview: unknown layer %q", layer)
		}
		fc := r.sources[src]
		if fc == nil {
			continue
		}
		filter := r.filters[layer]
		for _, f := range fc.Features {
			if seen[f] || !filter.Matches(f.Properties) || !containsCoord(f.Geometry, coord) {
				continue
			}
			seen[f] = true
			hits = append(hits, f)
		}
	}
	return hits, nil
}

// Viewport implements Renderer.
func (r *Recording) Viewport() Viewport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewport
}

// SetViewport records a pan or zoom reported by the client.
func (r *Recording) SetViewport(v Viewport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = v
}

// FlyTo implements Camera.
func (r *Recording) FlyTo(center LatLng, zoom float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = ViewportAround(center, zoom, r.width, r.height)
	r.flights++
	return nil
}

// ScreenPointOf projects a coordinate onto the canvas.
func (r *Recording) ScreenPointOf(p LatLng) ScreenPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Project(r.viewport, p, r.width, r.height)
}

// State is a snapshot of everything pushed to a Recording. Expressions
// carries each filter in the form a client map engine applies directly.
type State struct {
	Viewport    Viewport                  `json:"viewport"`
	SourceSizes map[string]int            `json:"source_sizes"`
	Filters     map[string]Filter         `json:"filters"`
	Expressions map[string][]any          `json:"filter_expressions"`
	Paint       map[string]map[string]any `json:"paint"`
	Flights     int                       `json:"flights"`
}

// Snapshot copies the current state.
func (r *Recording) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := State{
		Viewport:    r.viewport,
		SourceSizes: make(map[string]int, len(r.sources)),
		Filters:     make(map[string]Filter, len(r.filters)),
		Expressions: make(map[string][]any, len(r.filters)),
		Paint:       make(map[string]map[string]any, len(r.paint)),
		Flights:     r.flights,
	}
	for name, fc := range r.sources {
		s.SourceSizes[name] = len(fc.Features)
	}
	for id, f := range r.filters {
		s.Filters[id] = f
		s.Expressions[id] = f.Expression()
	}
	for id, props := range r.paint {
		cp := make(map[string]any, len(props))
		for k, v := range props {
			cp[k] = v
		}
		s.Paint[id] = cp
	}
	return s
}

// Source returns the last data pushed for name.
func (r *Recording) Source(name string) *geojson.FeatureCollection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// Filter returns the filter last set on layerID.
func (r *Recording) Filter(layerID string) Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filters[layerID]
}

func containsCoord(g geom.T, c geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, c)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), c) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(p.Layout(), c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}
