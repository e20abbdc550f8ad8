package stripe

import (
	"context"
	"errors"
	"time"

	"github.com/harukimori/fleamarket-backend/pkg/redis"
)

const idempotencyScope = "stripe_event"

// IdempotencyGuard suppresses duplicate webhook deliveries by marking event
// ids in Redis. Marks expire so the key space stays bounded.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewIdempotencyGuard builds the guard from the shared Redis client.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("idempotency ttl must be positive")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark atomically claims the event id. It returns false when another
// delivery already claimed it.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key := g.store.IdempotencyKey(idempotencyScope, eventID)
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops the claim so a failed event can be retried by Stripe.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	key := g.store.IdempotencyKey(idempotencyScope, eventID)
	return g.store.Del(ctx, key)
}
