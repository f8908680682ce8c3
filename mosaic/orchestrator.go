package mosaic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// SampleMatrix is the column-stacked result of sampling one layer:
// one row per query point, one column per band, in the layer's band
// order. Every cell is filled; a band that could not be acquired at
// all is a column of the layer's default value.
type SampleMatrix struct {
	Bands  []string
	Values [][]float64
}

// Orchestrator drives the acquisition pipeline per named layer:
// cache-check, plan, fetch, assemble, cache-write, sample.
type Orchestrator struct {
	cfg     *Config
	layers  Layers
	cache   Cache
	fetcher *TileFetcher
	logger  *zap.Logger
}

func NewOrchestrator(cfg *Config, layers Layers, source ImageSource, cache Cache, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		layers:  layers,
		cache:   cache,
		fetcher: NewTileFetcher(source, cfg.Workers, logger),
		logger:  logger,
	}
}

// Sample resolves per-point values for a named layer against the
// current date. See SampleAt.
func (o *Orchestrator) Sample(ctx context.Context, layerName string, points []orb.Point) (*SampleMatrix, error) {
	return o.SampleAt(ctx, layerName, time.Now(), points)
}

// SampleAt resolves per-point values for a named layer with the
// layer's compositing window ending at the given date. The result
// always has len(points) rows and one column per band; a failed band
// is a column of the layer's default, never an error. The only errors
// are an unknown layer name and a cancelled context.
func (o *Orchestrator) SampleAt(ctx context.Context, layerName string, date time.Time, points []orb.Point) (*SampleMatrix, error) {
	layer, ok := o.layers[layerName]
	if !ok {
		return nil, fmt.Errorf("unknown layer %q", layerName)
	}

	bands := make([]string, len(layer.Bands))
	for i, b := range layer.Bands {
		bands[i] = b.Name
	}

	matrix := &SampleMatrix{Bands: bands, Values: make([][]float64, len(points))}
	if len(points) == 0 {
		return matrix, nil
	}

	bounds := pointHull(points, o.cfg.PointMargin)
	window := layer.window(date)

	// Bands are mutually independent; run them concurrently and let
	// each one fail on its own.
	columns := make([][]float64, len(layer.Bands))
	var wg sync.WaitGroup
	for i, band := range layer.Bands {
		wg.Add(1)
		go func(i int, band Band) {
			defer wg.Done()
			columns[i] = o.sampleBand(ctx, layer, band, window, bounds, points)
		}(i, band)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for row := range points {
		values := make([]float64, len(columns))
		for col := range columns {
			values[col] = columns[col][row]
		}
		matrix.Values[row] = values
	}

	return matrix, nil
}

// sampleBand runs the full pipeline for one band and always returns a
// len(points) column. Any failure past this point is represented as
// default values for the affected points.
func (o *Orchestrator) sampleBand(ctx context.Context, layer Layer, band Band, window TimeWindow, bounds orb.Bound, points []orb.Point) []float64 {
	log := o.logger.With(
		zap.String("layer", layer.Name),
		zap.String("band", band.Name),
		zap.String("window", window.String()))

	key := CacheKeyFor(layer.Name, band.Name, window, layer.Resolution)

	if raster, found, err := o.cache.Get(ctx, key); err != nil {
		// A read failure is just a miss.
		log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if found {
		log.Debug("cache hit", zap.String("key", key))
		return SamplePoints(raster, points, layer.Default)
	}

	tiles, err := PlanTiles(bounds, layer.Resolution, layer.bytesPerPixel(), layer.budget(o.cfg.BudgetBytes))
	if err != nil {
		log.Error("planning failed", zap.Error(err))
		return defaultColumn(len(points), layer.Default)
	}
	log.Debug("planned tiles", zap.Int("count", len(tiles)))

	results := o.fetcher.FetchTiles(ctx, FetchParams{
		Coverage:   band.Coverage,
		Resolution: layer.Resolution,
		Format:     layer.Format,
		CRS:        o.cfg.CRS,
		Window:     window,
		QualityMax: layer.QualityMax,
	}, tiles)

	fetched := make([]*Raster, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			fetched = append(fetched, res.Raster)
		}
	}

	merged, err := Merge(fetched)
	if err != nil {
		log.Error("no tiles survived fetching", zap.Int("planned", len(tiles)), zap.Error(err))
		return defaultColumn(len(points), layer.Default)
	}

	if len(fetched) == len(tiles) {
		// Only a verified-complete mosaic is cached; a partial result
		// must not poison later attempts.
		if err := o.cache.Put(ctx, key, merged); err != nil {
			log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	} else {
		log.Warn("partial mosaic, not caching",
			zap.Int("fetched", len(fetched)),
			zap.Int("planned", len(tiles)))
	}

	return SamplePoints(merged, points, layer.Default)
}

func defaultColumn(n int, value float64) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = value
	}
	return col
}
