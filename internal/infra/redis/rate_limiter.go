package redis

import (
	"context"
	"time"

	"social-pipeline/internal/domain/ports/repository"
)

var _ repository.RateLimiter = (*RateLimiter)(nil)

// RateLimiter counts events per key in fixed windows.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}

	return count <= int64(limit), nil
}

func (r *RateLimiter) Release(ctx context.Context, key string) error {
	count, err := r.client.Decr(ctx, key)
	if err != nil {
		return err
	}
	if count <= 0 {
		return r.client.Del(ctx, key)
	}
	return nil
}
