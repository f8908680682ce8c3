package mosaic

import (
	"math"

	"github.com/paulmach/orb"
)

// minAxisExtent is the epsilon floor applied to a near-zero axis when
// computing the ground aspect ratio, so a degenerate sliver cannot
// divide by zero.
const minAxisExtent = 1e-9

// TileSpec is one cell of a tiling plan: a sub-bound of the parent
// region together with its own pixel grid and size estimate. IDs are
// assigned row-major, north to south then west to east.
type TileSpec struct {
	ID       int
	Bounds   orb.Bound
	Width    int
	Height   int
	EstBytes int64
}

// PlanTiles partitions a region into a grid of tiles whose estimated
// payloads individually fit the byte budget. The tiles exactly cover
// the region: cell edges are computed from grid indices against the
// parent bound, so adjacent cells share edges and the union has no
// gaps.
//
// The grid is sized by splitting ceil(total/budget) cells between the
// axes in proportion to the region's ground aspect ratio. A region
// whose single-pixel payload already exceeds the budget cannot be
// split further; the plan is still returned and the oversized estimate
// is visible on the TileSpec.
func PlanTiles(b orb.Bound, resolution float64, bytesPerPixel int, budget int64) ([]TileSpec, error) {
	if budget <= 0 {
		return nil, &PlanningError{Reason: "byte budget must be > 0"}
	}

	total, err := EstimateBytes(b, resolution, bytesPerPixel)
	if err != nil {
		return nil, err
	}

	if total <= budget {
		width, height, err := GridSize(b, resolution)
		if err != nil {
			return nil, err
		}
		return []TileSpec{{
			ID:       0,
			Bounds:   b,
			Width:    width,
			Height:   height,
			EstBytes: total,
		}}, nil
	}

	count := (total + budget - 1) / budget

	widthMeters, heightMeters := groundExtent(b)
	widthMeters = math.Max(widthMeters, minAxisExtent)
	heightMeters = math.Max(heightMeters, minAxisExtent)
	aspect := widthMeters / heightMeters

	tilesX := int(math.Ceil(math.Sqrt(float64(count) * aspect)))
	if tilesX < 1 {
		tilesX = 1
	}
	// An extreme aspect ratio can push the proportional split past the
	// needed cell count; all the splitting belongs on this axis then.
	if int64(tilesX) > count {
		tilesX = int(count)
	}
	tilesY := int(math.Ceil(float64(count) / float64(tilesX)))
	if tilesY < 1 {
		tilesY = 1
	}

	spanX := b.Max.X() - b.Min.X()
	spanY := b.Max.Y() - b.Min.Y()

	tiles := make([]TileSpec, 0, tilesX*tilesY)
	for row := 0; row < tilesY; row++ {
		// Row 0 is the northmost strip, matching raster row order.
		maxLat := b.Max.Y() - float64(row)*spanY/float64(tilesY)
		minLat := b.Max.Y() - float64(row+1)*spanY/float64(tilesY)
		if row == tilesY-1 {
			minLat = b.Min.Y()
		}
		for col := 0; col < tilesX; col++ {
			minLon := b.Min.X() + float64(col)*spanX/float64(tilesX)
			maxLon := b.Min.X() + float64(col+1)*spanX/float64(tilesX)
			if col == tilesX-1 {
				maxLon = b.Max.X()
			}

			cell := orb.Bound{
				Min: orb.Point{minLon, minLat},
				Max: orb.Point{maxLon, maxLat},
			}

			width, height, err := GridSize(cell, resolution)
			if err != nil {
				return nil, err
			}

			tiles = append(tiles, TileSpec{
				ID:       row*tilesX + col,
				Bounds:   cell,
				Width:    width,
				Height:   height,
				EstBytes: int64(width) * int64(height) * int64(bytesPerPixel),
			})
		}
	}

	return tiles, nil
}

// PlanGrid reports the tile grid dimensions a plan would use, without
// materializing the tiles.
func PlanGrid(tiles []TileSpec) (tilesX, tilesY int) {
	if len(tiles) == 0 {
		return 0, 0
	}
	maxID := 0
	firstRowLen := 0
	firstMinLat := tiles[0].Bounds.Min.Y()
	for _, t := range tiles {
		if t.ID > maxID {
			maxID = t.ID
		}
		if t.Bounds.Min.Y() == firstMinLat {
			firstRowLen++
		}
	}
	tilesX = firstRowLen
	tilesY = (maxID + 1) / tilesX
	return tilesX, tilesY
}
