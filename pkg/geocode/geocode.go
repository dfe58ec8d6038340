// Package geocode resolves free-text location descriptions to coordinates
// through a known-location table, a shared result cache, and a primary and
// secondary provider. It also answers reverse geocoding and census tract
// lookups and picks an initial map zoom for a result.
package geocode

import (
	"context"
	"fmt"

	"github.com/sells-group/siteplan/internal/apperr"
)

// Source identifies which stage of the fallback chain produced a Result.
type Source string

const (
	SourceCache     Source = "cache"
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceManual    Source = "manual"
)

// Bounds is a south-west / north-east lat/lng box.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Span returns the larger of the latitude and longitude extents in degrees.
func (b Bounds) Span() float64 {
	lat := b.North - b.South
	lng := b.East - b.West
	if lat < 0 {
		lat = -lat
	}
	if lng < 0 {
		lng = -lng
	}
	return max(lat, lng)
}

// Result is a geocoded location. It is passed by value and never mutated.
type Result struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	Bounds     *Bounds `json:"bounds,omitempty"`
	// Provider names the concrete backend ("google", "nominatim", "known").
	Provider string `json:"provider,omitempty"`
}

// ReverseResult holds address components for a coordinate.
type ReverseResult struct {
	City       string  `json:"city"`
	County     string  `json:"county"`
	State      string  `json:"state"`
	Country    string  `json:"country"`
	Confidence float64 `json:"confidence"`
}

// Tract identifies the census block containing a coordinate.
type Tract struct {
	StateFIPS     string `json:"state_fips"`
	CountyFIPS    string `json:"county_fips"`
	TractFIPS     string `json:"tract_fips"`
	BlockFIPS     string `json:"block_fips"`
	FullTractFIPS string `json:"full_tract_fips"`
}

// Provider is a single forward geocoding backend. A nil Result with a nil
// error means the provider answered but found nothing.
type Provider interface {
	Name() string
	Available() bool
	Geocode(ctx context.Context, text string) (*Result, error)
}

// Reverser resolves a coordinate to address components.
type Reverser interface {
	Reverse(ctx context.Context, lat, lng float64) (*ReverseResult, error)
}

// TractLocator resolves a coordinate to a census tract.
type TractLocator interface {
	Tract(ctx context.Context, lat, lng float64) (*Tract, error)
}

// providerError marks a provider failure as ErrProviderUnavailable while
// keeping the cause (possibly a resilience.TransientError) in the chain.
type providerError struct {
	provider string
	cause    error
}

func (e *providerError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.provider, apperr.ErrProviderUnavailable, e.cause)
}

func (e *providerError) Unwrap() error { return e.cause }

func (e *providerError) Is(target error) bool { return target == apperr.ErrProviderUnavailable }

func unavailable(provider string, cause error) error {
	return &providerError{provider: provider, cause: cause}
}
