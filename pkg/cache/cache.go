// Package cache provides byte-level caching for decoded layer buffers and
// other derived data that is expensive to recompute.
//
// Backends implement [Cache]:
//
//   - [MemoryCache]: process-local map, the default for a single run
//   - [FileCache]: persists entries under a directory across runs
//   - [RedisCache]: shares entries across machines and concurrent runs
//   - [NullCache]: disables caching
//
// Keys come from a [Keyer] so that every caller derives identical keys for
// identical inputs. A key for a source file includes its size and
// modification time, so an edited layer is never served stale.
package cache

import (
	"context"
	"time"

	"github.com/matzehuels/nftgen/pkg/errors"
)

// Cache is a byte store with optional per-entry TTL.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached data and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Clearer is implemented by caches that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Backend names accepted by [Open].
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Options selects and configures a cache backend.
type Options struct {
	Backend   string // one of the Backend* constants; empty means memory
	Dir       string // FileCache directory
	RedisAddr string // RedisCache address, host:port
	Prefix    string // RedisCache key prefix
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryCache(), nil
	case BackendFile:
		if opts.Dir == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "file cache requires a directory")
		}
		fc, err := NewFileCache(opts.Dir)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIO, err, "create cache directory %s", opts.Dir)
		}
		return fc, nil
	case BackendRedis:
		rc, err := NewRedisCache(ctx, opts.RedisAddr, opts.Prefix)
		if err != nil {
			return nil, err
		}
		return rc, nil
	case BackendNone:
		return NewNullCache(), nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q (want memory, file, redis or none)", opts.Backend)
	}
}

// NullCache disables caching: every Get misses and Set discards the data.
type NullCache struct{}

// NewNullCache returns the backend selected by "none".
func NewNullCache() Cache { return NullCache{} }

func (NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NullCache) Delete(context.Context, string) error                     { return nil }
func (NullCache) Close() error                                             { return nil }
