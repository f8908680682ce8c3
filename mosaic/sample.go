package mosaic

import (
	"math"

	"github.com/paulmach/orb"
)

// SamplePoints maps each query point through the raster's inverse
// affine transform and returns one value per point, order preserved.
// Points are resolved to pixels by truncating the fractional indices
// toward zero; inclusion is half-open in pixel space, so the edges
// adjoining pixel (0, 0) — the west and north edges of a north-up
// raster — are inside, and the opposite edges are outside, on every
// run.
//
// A pixel that is NaN or equal to the raster's nodata value yields the
// sentinel, as does any point outside the grid. A nil or inconsistent
// raster yields the sentinel for every point; sampling never fails.
func SamplePoints(r *Raster, points []orb.Point, sentinel float64) []float64 {
	out := make([]float64, len(points))

	if !r.valid() {
		for i := range out {
			out[i] = sentinel
		}
		return out
	}

	// Bulk-transform the whole batch first; batches are commonly tens
	// of thousands of points.
	cols := make([]float64, len(points))
	rows := make([]float64, len(points))
	for i, p := range points {
		cols[i], rows[i] = r.Transform.Pixel(p.X(), p.Y())
	}

	nodata := float64(r.NoData)
	width := float64(r.Width)
	height := float64(r.Height)

	for i := range out {
		c, rw := cols[i], rows[i]
		if c < 0 || rw < 0 || c >= width || rw >= height {
			out[i] = sentinel
			continue
		}
		v := float64(r.Pix[int(rw)*r.Width+int(c)])
		if math.IsNaN(v) || v == nodata {
			out[i] = sentinel
			continue
		}
		out[i] = v
	}

	return out
}
