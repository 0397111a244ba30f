package raster

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/nftgen/pkg/cache"
	"github.com/matzehuels/nftgen/pkg/errors"
	"github.com/matzehuels/nftgen/pkg/observability"
)

// Store loads layer images through a cache so that each source PNG is
// decoded once per cache lifetime rather than once per generated item.
// Concurrent loads of the same file share one decode.
//
// Images returned by Load may be shared between callers and must be treated
// as read-only.
type Store struct {
	cache cache.Cache
	keyer cache.Keyer
	ttl   time.Duration
	group singleflight.Group
}

// NewStore creates a store. A nil cache disables caching and a nil keyer
// uses cache.DefaultKeyer.
func NewStore(c cache.Cache, keyer cache.Keyer, ttl time.Duration) *Store {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &Store{cache: c, keyer: keyer, ttl: ttl}
}

// Load returns the decoded image at path.
func (s *Store) Load(ctx context.Context, path string) (*Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "stat layer %s", path)
	}
	key := s.keyer.LayerKey(path, info.Size(), info.ModTime())

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.load(ctx, path, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Image), nil
}

func (s *Store) load(ctx context.Context, path, key string) (*Image, error) {
	if data, hit, err := s.cache.Get(ctx, key); err == nil && hit {
		var img Image
		if err := img.UnmarshalBinary(data); err == nil {
			observability.Cache().OnCacheHit(ctx, "layer")
			return &img, nil
		}
		_ = s.cache.Delete(ctx, key)
	}
	observability.Cache().OnCacheMiss(ctx, "layer")

	img, err := Read(path)
	if err != nil {
		return nil, err
	}

	if data, err := img.MarshalBinary(); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err == nil {
			observability.Cache().OnCacheSet(ctx, "layer", len(data))
		}
	}
	return img, nil
}
