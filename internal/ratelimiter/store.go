package ratelimiter

import (
	"context"
	"fmt"

	"github.com/marmos91/cipherfs/pkg/store"
)

// throttledStore waits for a token before every request reaching the
// wrapped store. Close is never throttled.
type throttledStore struct {
	store.Store
	limiter *RateLimiter
}

// WrapStore returns s throttled by limiter.
func WrapStore(s store.Store, limiter *RateLimiter) store.Store {
	return &throttledStore{Store: s, limiter: limiter}
}

func (s *throttledStore) wait(ctx context.Context, op string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("store %s: rate limit: %w", op, err)
	}
	return nil
}

func (s *throttledStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.wait(ctx, "get"); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, key)
}

func (s *throttledStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.wait(ctx, "put"); err != nil {
		return err
	}
	return s.Store.Put(ctx, key, data)
}

func (s *throttledStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.wait(ctx, "exists"); err != nil {
		return false, err
	}
	return s.Store.Exists(ctx, key)
}

func (s *throttledStore) Delete(ctx context.Context, key string) error {
	if err := s.wait(ctx, "delete"); err != nil {
		return err
	}
	return s.Store.Delete(ctx, key)
}
