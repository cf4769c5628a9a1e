package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/ports/repository"
)

var (
	_ repository.Locker    = (*Locker)(nil)
	_ repository.LikeCache = (*LikeCache)(nil)
)

type lease struct {
	token   string
	expires time.Time
}

// Locker is a process-local lock with the same contract as the redis one.
type Locker struct {
	mu    sync.Mutex
	held  map[string]lease
	clock func() time.Time
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]lease), clock: time.Now}
}

func (l *Locker) TryLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", domain.ErrLockBusy
	}
	token := uuid.NewString()
	l.held[key] = lease{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (l *Locker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}

// LikeCache remembers liked post ids for the life of the process.
type LikeCache struct {
	mu    sync.Mutex
	liked map[string]struct{}
}

func NewLikeCache() *LikeCache {
	return &LikeCache{liked: make(map[string]struct{})}
}

func (c *LikeCache) MarkLiked(_ context.Context, platform, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := platform + ":" + id
	if _, ok := c.liked[k]; ok {
		return false, nil
	}
	c.liked[k] = struct{}{}
	return true, nil
}

func (c *LikeCache) Liked(_ context.Context, platform, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.liked[platform+":"+id]
	return ok, nil
}

var _ repository.RateLimiter = (*RateLimiter)(nil)

type window struct {
	count int
	ends  time.Time
}

// RateLimiter is a fixed-window counter kept in memory.
type RateLimiter struct {
	mu    sync.Mutex
	wins  map[string]window
	clock func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{wins: make(map[string]window), clock: time.Now}
}

func (r *RateLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	w := r.wins[key]
	if now.After(w.ends) || w.ends.IsZero() {
		w = window{ends: now.Add(win)}
	}
	w.count++
	r.wins[key] = w
	return w.count <= limit, nil
}

func (r *RateLimiter) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wins[key]; ok && w.count > 0 {
		w.count--
		r.wins[key] = w
	}
	return nil
}
