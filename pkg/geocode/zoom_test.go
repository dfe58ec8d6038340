package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZoomFor_Bounds(t *testing.T) {
	tests := []struct {
		span float64
		want int
	}{
		{0.2, 10},
		{0.07, 12},
		{0.02, 14},
		{0.005, 16},
	}
	for _, tt := range tests {
		r := Result{Confidence: 0.1, Bounds: &Bounds{South: 33, West: -112, North: 33 + tt.span, East: -112 + tt.span/2}}
		assert.Equal(t, tt.want, ZoomFor(r), "span %v", tt.span)
	}
}

func TestZoomFor_UsesLargerSpan(t *testing.T) {
	r := Result{Bounds: &Bounds{South: 33, West: -112.3, North: 33.001, East: -112}}
	assert.Equal(t, 10, ZoomFor(r))
}

func TestZoomFor_Confidence(t *testing.T) {
	assert.Equal(t, 16, ZoomFor(Result{Confidence: 0.99}))
	assert.Equal(t, 14, ZoomFor(Result{Confidence: 0.8}))
	assert.Equal(t, 12, ZoomFor(Result{Confidence: 0.6}))
	assert.Equal(t, 10, ZoomFor(Result{Confidence: 0.4}))
}
