package cache

import (
	"context"
	"time"
)

// IdempotencyEntry remembers which return a client idempotency key produced.
type IdempotencyEntry struct {
	ReturnID string `json:"return_id"`
	OrderID  string `json:"order_id"`
}

type IdempotencyCache interface {
	Get(ctx context.Context, key string) (*IdempotencyEntry, bool, error)
	Set(ctx context.Context, key string, value *IdempotencyEntry, ttl time.Duration) error
}

type NoopIdempotencyCache struct{}

func (NoopIdempotencyCache) Get(_ context.Context, _ string) (*IdempotencyEntry, bool, error) {
	return nil, false, nil
}

func (NoopIdempotencyCache) Set(_ context.Context, _ string, _ *IdempotencyEntry, _ time.Duration) error {
	return nil
}
