package mosaic

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffineRoundTrip(t *testing.T) {
	a := Affine{OriginX: -46.5, OriginY: -20.1, PixelWidth: 0.0002, PixelHeight: -0.0002}

	lon, lat := a.Geo(10, 20)
	col, row := a.Pixel(lon, lat)

	assert.InDelta(t, 10, col, 1e-9)
	assert.InDelta(t, 20, row, 1e-9)
}

func TestAffineGeoMovesSouthForNorthUpRaster(t *testing.T) {
	a := Affine{OriginX: 0, OriginY: 10, PixelWidth: 0.1, PixelHeight: -0.1}

	_, latTop := a.Geo(0, 0)
	_, latBottom := a.Geo(0, 5)

	require.Greater(t, latTop, latBottom)
}

func TestPointHullPadsEverySide(t *testing.T) {
	points := []orb.Point{{-46.5, -20.3}, {-46.2, -20.1}, {-46.4, -20.2}}

	b := pointHull(points, 0.01)

	assert.InDelta(t, -46.51, b.Min.X(), 1e-12)
	assert.InDelta(t, -20.31, b.Min.Y(), 1e-12)
	assert.InDelta(t, -46.19, b.Max.X(), 1e-12)
	assert.InDelta(t, -20.09, b.Max.Y(), 1e-12)
}

func TestValidBound(t *testing.T) {
	tests := []struct {
		name  string
		bound orb.Bound
		want  bool
	}{
		{"normal", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, true},
		{"inverted lon", orb.Bound{Min: orb.Point{1, 0}, Max: orb.Point{0, 1}}, false},
		{"inverted lat", orb.Bound{Min: orb.Point{0, 1}, Max: orb.Point{1, 0}}, false},
		{"zero area", orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 1}}, false},
		{"beyond pole", orb.Bound{Min: orb.Point{0, 80}, Max: orb.Point{1, 95}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validBound(tt.bound); got != tt.want {
				t.Errorf("validBound(%v) = %v, want %v", tt.bound, got, tt.want)
			}
		})
	}
}
