package redis

import (
	"context"
	"time"

	"social-pipeline/internal/domain/ports/repository"
)

var _ repository.LikeCache = (*LikeCache)(nil)

// LikeCache keeps liked post ids so restarts do not like twice.
type LikeCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewLikeCache(client RedisClient, ttl time.Duration) *LikeCache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &LikeCache{client: client, ttl: ttl}
}

func likedKey(platform, id string) string { return "liked:" + platform + ":" + id }

func (c *LikeCache) MarkLiked(ctx context.Context, platform, id string) (bool, error) {
	return c.client.SetNX(ctx, likedKey(platform, id), 1, c.ttl)
}

func (c *LikeCache) Liked(ctx context.Context, platform, id string) (bool, error) {
	return c.client.Exists(ctx, likedKey(platform, id))
}
