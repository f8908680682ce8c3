package mosaic

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Cache is durable storage for assembled mosaics. Only fully
// successful mosaics are ever stored, so a hit can always skip
// acquisition entirely. Puts under the same key write identical bytes,
// which makes concurrent writers safe, merely wasteful.
type Cache interface {
	// Get returns the artifact for key, or found == false on a miss.
	Get(ctx context.Context, key string) (*Raster, bool, error)
	// Put stores the artifact under key, replacing any previous entry.
	Put(ctx context.Context, key string, r *Raster) error
}

// CacheKeyFor derives the deterministic cache key for one band
// acquisition from everything that changes its pixels: layer, band,
// temporal window and resolution.
func CacheKeyFor(layer, band string, window TimeWindow, resolution float64) string {
	seed := fmt.Sprintf("%s/%s/%s/%.6f", layer, band, window, resolution)
	sum := md5.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

const artifactExt = ".ras"

// DiskCache stores one artifact file per key under a root directory,
// sharded by key prefix.
type DiskCache struct {
	root string
}

func NewDiskCache(root string) (*DiskCache, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, err
	}
	return &DiskCache{root: abs}, nil
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.root, key[:2], key+artifactExt)
}

func (c *DiskCache) Get(_ context.Context, key string) (*Raster, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	}

	r, err := DecodeRaster(data)
	if err != nil {
		// A corrupt entry is a miss; the caller will refetch and
		// replace it.
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	}
	return r, true, nil
}

// Put writes through a temporary file in the same directory and
// renames it into place, so a partially written artifact is never
// visible under the key on any exit path.
func (c *DiskCache) Put(_ context.Context, key string, r *Raster) error {
	data, err := EncodeRaster(r)
	if err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}

	dst := c.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), key+".tmp-*")
	if err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &CacheError{Op: "put", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}
	return nil
}
