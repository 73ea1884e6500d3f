package database

import (
	"fmt"
	"net/url"
)

// Config holds database configuration.
type Config struct {
	// Path is the SQLite file location. The parent directory is
	// created on first open.
	Path string

	// MaxOpenConns bounds the connection pool. WAL mode allows one
	// writer alongside concurrent readers; the busy timeout below
	// absorbs short writer contention.
	MaxOpenConns int

	// BusyTimeoutMS is how long a connection waits on a locked
	// database before failing.
	BusyTimeoutMS int
}

// DefaultConfig returns sensible defaults for the given file path.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		MaxOpenConns:  10,
		BusyTimeoutMS: 5000,
	}
}

// DSN builds the sqlite3 connection string: WAL journal for concurrent
// readers during writes, enforced foreign keys for the run_id cascades,
// and UTC timestamps.
func DSN(cfg Config) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", fmt.Sprintf("%d", cfg.BusyTimeoutMS))
	params.Set("_foreign_keys", "on")
	params.Set("_loc", "UTC")
	return fmt.Sprintf("file:%s?%s", cfg.Path, params.Encode())
}
