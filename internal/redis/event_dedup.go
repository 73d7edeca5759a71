package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDedup remembers processed event delivery ids. The event channel has
// no ordering or exactly-once guarantee, so redelivered events are dropped
// here instead of triggering redundant refetches.
type EventDedup interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
	Mark(ctx context.Context, deliveryID string) error
}

type redisEventDedup struct {
	client *redis.Client
	ttl    time.Duration
}

const dedupKeyPrefix = "seen:delivery:"

// NewRedisEventDedup creates an EventDedup with the given retention window.
func NewRedisEventDedup(client *redis.Client, ttl time.Duration) EventDedup {
	return &redisEventDedup{client: client, ttl: ttl}
}

func (r *redisEventDedup) Seen(ctx context.Context, deliveryID string) (bool, error) {
	val, err := r.client.Get(ctx, dedupKeyPrefix+deliveryID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking delivery %s: %w", deliveryID, err)
	}
	return val == "processed", nil
}

func (r *redisEventDedup) Mark(ctx context.Context, deliveryID string) error {
	if err := r.client.Set(ctx, dedupKeyPrefix+deliveryID, "processed", r.ttl).Err(); err != nil {
		return fmt.Errorf("marking delivery %s: %w", deliveryID, err)
	}
	return nil
}
