package mosaic

import (
	"math"

	"github.com/paulmach/orb"
)

// metersPerDegree is the planning approximation for one degree of
// latitude. Longitude degrees shrink by the cosine of the latitude.
// This is intentionally not a geodetic projection; it only has to be
// good enough to size tile requests.
const metersPerDegree = 111320.0

// Affine maps raster pixel indices to geographic coordinates. OriginX
// and OriginY locate the outer corner of pixel (0, 0). PixelWidth is
// positive and PixelHeight negative for the usual north-up raster.
type Affine struct {
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
}

// Geo returns the geographic coordinates of the corner of pixel
// (col, row) closest to the origin. Pass col+0.5, row+0.5 for pixel
// centers.
func (a Affine) Geo(col, row float64) (lon, lat float64) {
	return a.OriginX + col*a.PixelWidth, a.OriginY + row*a.PixelHeight
}

// Pixel inverts the transform, returning fractional pixel coordinates.
func (a Affine) Pixel(lon, lat float64) (col, row float64) {
	return (lon - a.OriginX) / a.PixelWidth, (lat - a.OriginY) / a.PixelHeight
}

func (a Affine) valid() bool {
	return a.PixelWidth != 0 && a.PixelHeight != 0 &&
		!math.IsNaN(a.OriginX) && !math.IsNaN(a.OriginY)
}

// groundExtent converts a degree-space bound to approximate ground
// meters on each axis.
func groundExtent(b orb.Bound) (widthMeters, heightMeters float64) {
	midLat := (b.Min.Y() + b.Max.Y()) / 2
	widthMeters = (b.Max.X() - b.Min.X()) * metersPerDegree * math.Cos(midLat*math.Pi/180)
	heightMeters = (b.Max.Y() - b.Min.Y()) * metersPerDegree
	return widthMeters, heightMeters
}

func validBound(b orb.Bound) bool {
	return b.Min.X() < b.Max.X() && b.Min.Y() < b.Max.Y() &&
		b.Min.Y() >= -90 && b.Max.Y() <= 90
}

// pointHull returns the axis-aligned bound of the points padded by
// margin degrees on every side.
func pointHull(points []orb.Point, margin float64) orb.Bound {
	return orb.MultiPoint(points).Bound().Pad(margin)
}
