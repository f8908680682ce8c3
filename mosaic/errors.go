package mosaic

import "fmt"

// The error taxonomy keeps failures scoped to the smallest unit that
// can make progress without them. A FetchError belongs to one tile and
// is recovered by excluding that tile. A PlanningError or
// AssemblyError is fatal to one band of one layer. Orchestrator.Sample
// always returns a fixed-length matrix regardless; total
// unavailability of a band shows up as that band's default value, not
// as a bubbled error.

// PlanningError reports an invalid bounding box, resolution or budget,
// detected before any network traffic.
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string {
	return "planning: " + e.Reason
}

// FetchError wraps a per-tile failure: network error, bad status,
// malformed payload or timeout. It never aborts sibling tiles.
type FetchError struct {
	TileID int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch tile %d: %v", e.TileID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AssemblyError means zero tiles of a band survived fetching, so there
// is nothing to merge.
type AssemblyError struct {
	Reason string
}

func (e *AssemblyError) Error() string {
	return "assembly: " + e.Reason
}

// CacheError wraps a cache backend failure. A Get failure degrades to
// a cache miss; a Put failure is a warning, the in-memory mosaic is
// still used.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// SamplingError reports a corrupt or inconsistent raster artifact. The
// sampler itself never raises it: a bad artifact yields the sentinel
// for every point.
type SamplingError struct {
	Reason string
}

func (e *SamplingError) Error() string {
	return "sampling: " + e.Reason
}
