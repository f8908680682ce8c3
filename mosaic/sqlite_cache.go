package mosaic

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver
)

// SQLiteCache keeps artifacts in a single sqlite database, handy when
// a cache has to travel as one file.
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			cache_key TEXT NOT NULL PRIMARY KEY,
			payload BLOB NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
		PRAGMA synchronous=OFF;
	`); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (*Raster, bool, error) {
	var payload []byte
	row := c.db.QueryRowContext(ctx, "SELECT payload FROM artifacts WHERE cache_key = ? LIMIT 1", key)
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	}

	r, err := DecodeRaster(payload)
	if err != nil {
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	}
	return r, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, key string, r *Raster) error {
	data, err := EncodeRaster(r)
	if err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO artifacts (cache_key, payload) VALUES (?, ?)", key, data)
	if err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// Close tears down the database connection.
func (c *SQLiteCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
