package mosaic

import (
	"math"
)

// Merge combines fetched tile rasters into one continuous raster. A
// single input is returned unchanged. Multiple inputs are copied onto
// a grid spanning all of them at the finest input resolution.
//
// Tiles are spatially disjoint by construction, so overlap can only
// come from boundary rounding; a destination pixel that already holds
// data is never overwritten, which makes the outcome deterministic in
// input order (first writer wins).
func Merge(tiles []*Raster) (*Raster, error) {
	switch len(tiles) {
	case 0:
		return nil, &AssemblyError{Reason: "no tiles to merge"}
	case 1:
		return tiles[0], nil
	}

	pixelWidth := math.Inf(1)
	pixelHeight := math.Inf(1)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)

	for _, t := range tiles {
		if !t.valid() {
			return nil, &AssemblyError{Reason: "inconsistent tile raster"}
		}
		pixelWidth = math.Min(pixelWidth, math.Abs(t.Transform.PixelWidth))
		pixelHeight = math.Min(pixelHeight, math.Abs(t.Transform.PixelHeight))

		b := t.Bounds()
		minX = math.Min(minX, b.Min.X())
		minY = math.Min(minY, b.Min.Y())
		maxX = math.Max(maxX, b.Max.X())
		maxY = math.Max(maxY, b.Max.Y())
	}

	width := int(math.Round((maxX - minX) / pixelWidth))
	height := int(math.Round((maxY - minY) / pixelHeight))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if width > maxPixelsPerAxis || height > maxPixelsPerAxis {
		return nil, &AssemblyError{Reason: "merged grid exceeds the per-axis pixel limit"}
	}

	nodata := tiles[0].NoData
	out := NewRaster(width, height, Affine{
		OriginX:     minX,
		OriginY:     maxY,
		PixelWidth:  pixelWidth,
		PixelHeight: -pixelHeight,
	}, nodata)

	for _, t := range tiles {
		copyInto(out, t)
	}

	return out, nil
}

// copyInto maps every source pixel center into the destination grid.
// Destination pixels already holding data are left alone.
func copyInto(dst *Raster, src *Raster) {
	for row := 0; row < src.Height; row++ {
		for col := 0; col < src.Width; col++ {
			lon, lat := src.Transform.Geo(float64(col)+0.5, float64(row)+0.5)
			dc, dr := dst.Transform.Pixel(lon, lat)
			if dc < 0 || dr < 0 {
				continue
			}
			c, r := int(dc), int(dr)
			if c >= dst.Width || r >= dst.Height {
				continue
			}
			if !isNoData(dst.At(c, r), dst.NoData) {
				continue
			}
			dst.Set(c, r, src.At(col, row))
		}
	}
}
