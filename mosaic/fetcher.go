package mosaic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultFetchWorkers = 8

// FetchParams carries the per-band request parameters shared by every
// tile of one acquisition.
type FetchParams struct {
	Coverage   string
	Resolution float64
	Format     string
	CRS        string
	Window     TimeWindow
	QualityMax float64
}

// TileResult is the outcome of one tile task: either a decoded raster
// or a tile-scoped error, never both.
type TileResult struct {
	Spec    TileSpec
	Raster  *Raster
	Err     error
	Elapsed time.Duration
}

// TileFetcher retrieves planned tiles through an ImageSource with a
// bounded worker pool. Each tile fails independently; the pool always
// drains every job before FetchTiles returns.
type TileFetcher struct {
	source  ImageSource
	workers int
	logger  *zap.Logger
}

func NewTileFetcher(source ImageSource, workers int, logger *zap.Logger) *TileFetcher {
	if workers < 1 {
		workers = defaultFetchWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TileFetcher{
		source:  source,
		workers: workers,
		logger:  logger,
	}
}

// FetchTiles fetches every tile and returns one result per spec,
// ordered by tile ID. Cancellation of ctx marks undone tiles as failed
// rather than blocking; results for tiles already in flight are still
// collected.
func (f *TileFetcher) FetchTiles(ctx context.Context, params FetchParams, tiles []TileSpec) []TileResult {
	jobs := make(chan TileSpec)
	results := make(chan TileResult)

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spec := range jobs {
				results <- f.fetchOne(ctx, params, spec)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, spec := range tiles {
			select {
			case jobs <- spec:
			case <-ctx.Done():
				results <- TileResult{
					Spec: spec,
					Err:  &FetchError{TileID: spec.ID, Err: ctx.Err()},
				}
			}
		}
	}()

	// Every tile produces exactly one result: through a worker, or
	// straight from the feeder when the context dies first.
	out := make([]TileResult, 0, len(tiles))
	for range tiles {
		out = append(out, <-results)
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].Spec.ID < out[j].Spec.ID })
	return out
}

func (f *TileFetcher) fetchOne(ctx context.Context, params FetchParams, spec TileSpec) TileResult {
	start := time.Now()

	raster, err := f.fetchRaster(ctx, params, spec)
	elapsed := time.Since(start)

	if err != nil {
		f.logger.Warn("tile fetch failed",
			zap.Int("tile", spec.ID),
			zap.String("coverage", params.Coverage),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return TileResult{
			Spec:    spec,
			Err:     &FetchError{TileID: spec.ID, Err: err},
			Elapsed: elapsed,
		}
	}

	return TileResult{
		Spec:    spec,
		Raster:  raster,
		Elapsed: elapsed,
	}
}

func (f *TileFetcher) fetchRaster(ctx context.Context, params FetchParams, spec TileSpec) (*Raster, error) {
	payload, err := f.source.FetchRegion(ctx, &RegionRequest{
		Coverage:   params.Coverage,
		Bounds:     spec.Bounds,
		Width:      spec.Width,
		Height:     spec.Height,
		Format:     params.Format,
		CRS:        params.CRS,
		Window:     params.Window,
		QualityMax: params.QualityMax,
	})
	if err != nil {
		return nil, err
	}

	raw, err := UnwrapPayload(payload)
	if err != nil {
		return nil, err
	}

	raster, err := DecodeRaster(raw)
	if err != nil {
		return nil, err
	}
	if raster.Width != spec.Width || raster.Height != spec.Height {
		return nil, fmt.Errorf("service returned a %dx%d grid, requested %dx%d",
			raster.Width, raster.Height, spec.Width, spec.Height)
	}

	return raster, nil
}
