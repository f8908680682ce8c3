package mosaic

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// maxPixelsPerAxis rejects absurdly large requests instead of letting
// a bad resolution produce a degenerate multi-gigapixel grid.
const maxPixelsPerAxis = 1 << 20

// GridSize returns the pixel dimensions a region would occupy at the
// given ground resolution (meters per pixel). Both dimensions are
// floored at one pixel.
func GridSize(b orb.Bound, resolution float64) (width, height int, err error) {
	if resolution <= 0 || math.IsNaN(resolution) {
		return 0, 0, &PlanningError{Reason: fmt.Sprintf("resolution must be > 0, got %g", resolution)}
	}
	if !validBound(b) {
		return 0, 0, &PlanningError{Reason: fmt.Sprintf("invalid bounding box %v", b)}
	}

	widthMeters, heightMeters := groundExtent(b)

	width = int(math.Ceil(widthMeters / resolution))
	height = int(math.Ceil(heightMeters / resolution))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	if width > maxPixelsPerAxis || height > maxPixelsPerAxis {
		return 0, 0, &PlanningError{
			Reason: fmt.Sprintf("region of %dx%d pixels exceeds the %d pixel per-axis limit", width, height, maxPixelsPerAxis),
		}
	}

	return width, height, nil
}

// EstimateBytes approximates the payload size of a region fetched at
// the given resolution.
func EstimateBytes(b orb.Bound, resolution float64, bytesPerPixel int) (int64, error) {
	if bytesPerPixel <= 0 {
		return 0, &PlanningError{Reason: fmt.Sprintf("bytes per pixel must be > 0, got %d", bytesPerPixel)}
	}
	width, height, err := GridSize(b, resolution)
	if err != nil {
		return 0, err
	}
	return int64(width) * int64(height) * int64(bytesPerPixel), nil
}
