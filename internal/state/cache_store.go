package state

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/futurework/internal/cache"
)

// CacheStore keeps state in the shared cache without expiry.
type CacheStore struct {
	cache cache.Cache
}

// NewCacheStore creates a Store backed by c.
func NewCacheStore(c cache.Cache) *CacheStore {
	return &CacheStore{cache: c}
}

func (s *CacheStore) Get(ctx context.Context, owner, key string) (string, bool, error) {
	val, found, err := s.cache.Get(ctx, cache.StateKey(owner, key))
	if err != nil {
		return "", false, fmt.Errorf("reading state %q: %w", key, err)
	}
	if !found {
		return "", false, nil
	}
	return string(val), true, nil
}

func (s *CacheStore) Set(ctx context.Context, owner, key, value string) error {
	if err := s.cache.Set(ctx, cache.StateKey(owner, key), []byte(value), 0); err != nil {
		return fmt.Errorf("writing state %q: %w", key, err)
	}
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, owner, key string) error {
	if err := s.cache.Delete(ctx, cache.StateKey(owner, key)); err != nil {
		return fmt.Errorf("deleting state %q: %w", key, err)
	}
	return nil
}

var _ Store = (*CacheStore)(nil)
