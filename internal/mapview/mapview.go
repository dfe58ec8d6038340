// Package mapview defines the capability interface the setup workflow uses to
// drive a map renderer, plus an in-memory implementation.
package mapview

import (
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Source and layer names shared by the loader and the selection engine.
const (
	ParcelSource        = "parcels"
	ParcelFillLayer     = "parcels-fill"
	ParcelOutlineLayer  = "parcels-outline"
	SelectedParcelLayer = "parcels-selected"
)

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ScreenPoint is a pixel offset from the top-left corner of the map canvas.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the visible area and zoom of the map.
type Viewport struct {
	SouthWest LatLng  `json:"sw"`
	NorthEast LatLng  `json:"ne"`
	Zoom      float64 `json:"zoom"`
}

// Center returns the midpoint of the viewport.
func (v Viewport) Center() LatLng {
	return LatLng{
		Lat: (v.SouthWest.Lat + v.NorthEast.Lat) / 2,
		Lng: (v.SouthWest.Lng + v.NorthEast.Lng) / 2,
	}
}

// Contains reports whether p lies inside the viewport, edges included.
func (v Viewport) Contains(p LatLng) bool {
	return p.Lat >= v.SouthWest.Lat && p.Lat <= v.NorthEast.Lat &&
		p.Lng >= v.SouthWest.Lng && p.Lng <= v.NorthEast.Lng
}

// Renderer is the subset of a map engine the setup workflow drives.
type Renderer interface {
	AddOrReplaceSource(name string, data *geojson.FeatureCollection) error
	SetLayerFilter(layerID string, f Filter) error
	SetPaintProperty(layerID, prop string, value any) error
	QueryFeaturesAtPoint(pt ScreenPoint, layers []string) ([]*geojson.Feature, error)
	Viewport() Viewport
}

// Camera is implemented by renderers that can animate to a location.
type Camera interface {
	FlyTo(center LatLng, zoom float64) error
}
