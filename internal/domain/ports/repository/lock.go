package repository

import (
	"context"
	"time"
)

// Locker guards a critical section across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// LikeCache remembers remote posts that were already liked.
type LikeCache interface {
	// MarkLiked records id and reports whether it was new.
	MarkLiked(ctx context.Context, platform, id string) (bool, error)
	Liked(ctx context.Context, platform, id string) (bool, error)
}

// RateLimiter counts events per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Release hands back one event taken by Allow, for work that did not happen.
	Release(ctx context.Context, key string) error
}
