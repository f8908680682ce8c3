package mosaic

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Endpoint:       "test",
		CRS:            "EPSG:4326",
		Workers:        4,
		HTTPTimeout:    5 * time.Second,
		Retries:        1,
		BudgetBytes:    128 * 1024,
		PayloadCeiling: 50 * 1024 * 1024,
		PointMargin:    0.005,
	}
}

func testLayers() Layers {
	return Layers{
		"soil": {
			Name: "soil",
			Bands: []Band{
				{Name: "clay", Coverage: "soil/clay_0-5cm"},
				{Name: "sand", Coverage: "soil/sand_0-5cm"},
			},
			Resolution: 120,
			Format:     "raster",
			WindowDays: 30,
			Default:    -1,
		},
	}
}

// testPoints spread across the test region so a 128 KiB budget forces
// a multi-tile plan.
var testPoints = []orb.Point{
	{-46.50, -0.10},
	{-46.30, -0.20},
	{-46.10, -0.10},
}

var testDate = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, fake *fakeCoverage) (*Orchestrator, *httptest.Server) {
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	source := NewCoverageSource(srv.URL, cfg.HTTPTimeout, cfg.Retries, nil)

	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	return NewOrchestrator(cfg, testLayers(), source, cache, nil), srv
}

func TestSampleReturnsColumnStackedMatrix(t *testing.T) {
	fake := &fakeCoverage{value: 37}
	o, _ := newTestOrchestrator(t, fake)

	matrix, err := o.SampleAt(context.Background(), "soil", testDate, testPoints)
	require.NoError(t, err)

	assert.Equal(t, []string{"clay", "sand"}, matrix.Bands)
	require.Len(t, matrix.Values, len(testPoints))
	for _, row := range matrix.Values {
		assert.Equal(t, []float64{37, 37}, row)
	}
}

func TestSampleUnknownLayer(t *testing.T) {
	fake := &fakeCoverage{value: 1}
	o, _ := newTestOrchestrator(t, fake)

	_, err := o.SampleAt(context.Background(), "nope", testDate, testPoints)
	assert.Error(t, err)
	assert.Zero(t, fake.hits.Load())
}

func TestSampleEmptyPoints(t *testing.T) {
	fake := &fakeCoverage{value: 1}
	o, _ := newTestOrchestrator(t, fake)

	matrix, err := o.SampleAt(context.Background(), "soil", testDate, nil)
	require.NoError(t, err)
	assert.Empty(t, matrix.Values)
	assert.Zero(t, fake.hits.Load())
}

func TestSampleWarmCachePerformsZeroFetches(t *testing.T) {
	fake := &fakeCoverage{value: 42}
	o, _ := newTestOrchestrator(t, fake)

	first, err := o.SampleAt(context.Background(), "soil", testDate, testPoints)
	require.NoError(t, err)
	coldHits := fake.hits.Load()
	require.Greater(t, coldHits, int64(0))

	second, err := o.SampleAt(context.Background(), "soil", testDate, testPoints)
	require.NoError(t, err)

	assert.Equal(t, coldHits, fake.hits.Load(), "warm cache must not touch the network")
	assert.Equal(t, first.Values, second.Values)
}

func TestSampleDifferentWindowMissesCache(t *testing.T) {
	fake := &fakeCoverage{value: 42}
	o, _ := newTestOrchestrator(t, fake)

	_, err := o.SampleAt(context.Background(), "soil", testDate, testPoints)
	require.NoError(t, err)
	coldHits := fake.hits.Load()

	_, err = o.SampleAt(context.Background(), "soil", testDate.AddDate(0, 0, 7), testPoints)
	require.NoError(t, err)

	assert.Greater(t, fake.hits.Load(), coldHits)
}

func TestSamplePartialTileFailure(t *testing.T) {
	// Poison the westernmost strip: the tile containing the first
	// query point fails, the others keep working.
	fail := orb.Bound{Min: orb.Point{-46.555, -0.255}, Max: orb.Point{-46.50, -0.20}}
	fake := &fakeCoverage{value: 21, failBounds: &fail}
	o, _ := newTestOrchestrator(t, fake)

	matrix, err := o.SampleAt(context.Background(), "soil", testDate, testPoints)
	require.NoError(t, err)

	layer := testLayers()["soil"]
	assert.Equal(t, []float64{layer.Default, layer.Default}, matrix.Values[0],
		"points inside the failed tile get the layer default")
	assert.Equal(t, []float64{21, 21}, matrix.Values[1])
	assert.Equal(t, []float64{21, 21}, matrix.Values[2])
}

func TestSamplePartialMosaicIsNotCached(t *testing.T) {
	fail := orb.Bound{Min: orb.Point{-46.555, -0.255}, Max: orb.Point{-46.50, -0.20}}
	fake := &fakeCoverage{value: 21, failBounds: &fail}
	o, _ := newTestOrchestrator(t, fake)

	_, err := o.SampleAt(context.Background(), "soil", testDate, testPoints)
	require.NoError(t, err)
	firstHits := fake.hits.Load()

	// The partial result must not have been cached, so the second call
	// fetches again.
	_, err = o.SampleAt(context.Background(), "soil", testDate, testPoints)
	require.NoError(t, err)
	assert.Greater(t, fake.hits.Load(), firstHits)
}

func TestSampleTotalBandFailureYieldsDefaultColumn(t *testing.T) {
	// Poison everything: every tile of every band fails.
	fail := orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	fake := &fakeCoverage{value: 21, failBounds: &fail}
	o, _ := newTestOrchestrator(t, fake)

	matrix, err := o.SampleAt(context.Background(), "soil", testDate, testPoints)
	require.NoError(t, err, "total unavailability is defaults, never an error")

	layer := testLayers()["soil"]
	for _, row := range matrix.Values {
		assert.Equal(t, []float64{layer.Default, layer.Default}, row)
	}
}

func TestPipelineTileCentroidsRoundTrip(t *testing.T) {
	fake := &fakeCoverage{value: 55}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	source := NewCoverageSource(srv.URL, 5*time.Second, 1, nil)
	fetcher := NewTileFetcher(source, 4, nil)

	tiles, err := PlanTiles(testRegion, 120, 4, 1<<20)
	require.NoError(t, err)
	require.Greater(t, len(tiles), 1)

	results := fetcher.FetchTiles(context.Background(), testFetchParams(), tiles)

	fetched := make([]*Raster, 0, len(results))
	centroids := make([]orb.Point, 0, len(results))
	for _, res := range results {
		require.NoError(t, res.Err)
		fetched = append(fetched, res.Raster)
		centroids = append(centroids, res.Spec.Bounds.Center())
	}

	merged, err := Merge(fetched)
	require.NoError(t, err)

	values := SamplePoints(merged, centroids, -1)
	for i, v := range values {
		assert.Equal(t, 55.0, v, "centroid of tile %d must sample a real value", i)
	}

	// Corners strictly inside the region sample real values too; the
	// exact max edges are outside by the half-open convention.
	eps := 1e-6
	corners := []orb.Point{
		{testRegion.Min.X() + eps, testRegion.Min.Y() + eps},
		{testRegion.Min.X() + eps, testRegion.Max.Y() - eps},
		{testRegion.Max.X() - eps, testRegion.Min.Y() + eps},
		{testRegion.Max.X() - eps, testRegion.Max.Y() - eps},
	}
	assert.Equal(t, []float64{55, 55, 55, 55}, SamplePoints(merged, corners, -1))
}
