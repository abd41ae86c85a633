// Package cache is a key value store with expiring entries.
// Entries live either in the process memory (locmem) or in a postgres table (db).
package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	BackendLocMem   = "locmem"
	BackendDatabase = "db"

	// DefaultTimeout is used, if a cache is configured without a timeout.
	DefaultTimeout = 5 * time.Minute

	// NoExpiry as ttl keeps an entry until it is deleted.
	NoExpiry time.Duration = -1
)

var (
	ErrCache          = errors.New("cache error")
	ErrMiss           = fmt.Errorf("%w: key not found", ErrCache)
	ErrNotInteger     = fmt.Errorf("%w: value is not an integer", ErrCache)
	ErrUnknownBackend = fmt.Errorf("%w: unknown backend", ErrCache)
	ErrInvalidOptions = fmt.Errorf("%w: invalid options", ErrCache)
)

// Cache stores values for a limited time.
// A ttl of 0 uses the default timeout of the cache, NoExpiry keeps the value forever.
type Cache interface {
	// Get returns ErrMiss, if the key does not exist or is expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr adds delta to the integer stored at key and returns the new value.
	// A missing key is created with the default timeout, an existing one keeps its expiry.
	Incr(ctx context.Context, key string, delta int64) (int64, error)
	Clear(ctx context.Context) error
}

// Culler is implemented by caches that have to remove expired entries explicitly.
type Culler interface {
	// Cull removes all expired entries and returns the number of entries removed.
	Cull(ctx context.Context) (int64, error)
}

// Options are the values of one entry of the cache settings.
type Options struct {
	Backend   string
	Location  string
	Timeout   time.Duration
	KeyPrefix string
	// MaxEntries limits the entries of the locmem backend, 0 means unlimited.
	MaxEntries int
}

// New returns the Cache configured by opts. The pool is only required for the db backend.
func New(opts Options, pgx *pgxpool.Pool) (Cache, error) { //nolint:ireturn // backend is chosen by the settings
	switch opts.Backend {
	case "", BackendLocMem:
		return NewLocMem(opts), nil
	case BackendDatabase:
		if pgx == nil {
			return nil, fmt.Errorf("%w: db backend requires a database connection", ErrInvalidOptions)
		}

		return NewPostgres(pgx, opts)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, opts.Backend)
}

// keyFunc builds the key as stored in the backend.
func keyFunc(prefix string) func(string) string {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		return func(key string) string { return key }
	}

	return func(key string) string { return prefix + ":" + key }
}

func expiresAt(now time.Time, ttl time.Duration, timeout time.Duration) time.Time {
	if ttl == 0 {
		ttl = timeout
	}

	if ttl < 0 {
		return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}

	return now.Add(ttl)
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultTimeout
	}

	return d
}

//nolint:gochecknoglobals // compiled once
var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)
