// Package memstore holds in-process implementations of the repository
// ports, used when no database or redis is configured.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/repository"
)

var _ repository.PostRepository = (*PostRepo)(nil)

// PostRepo is a map-backed post ledger. Stored posts are copies.
type PostRepo struct {
	mu    sync.RWMutex
	posts map[string]*model.Post
}

func NewPostRepo() *PostRepo {
	return &PostRepo{posts: make(map[string]*model.Post)}
}

func (r *PostRepo) Save(_ context.Context, _ repository.Tx, p *model.Post) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.posts[p.ID] = &cp
	return nil
}

func (r *PostRepo) SaveAll(ctx context.Context, posts []*model.Post) error {
	for _, p := range posts {
		if p == nil || p.ID == "" {
			return domain.ErrInvalidArgument
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range posts {
		cp := *p
		r.posts[p.ID] = &cp
	}
	return nil
}

func (r *PostRepo) ListByRow(_ context.Context, _ repository.Tx, row int, platform model.Platform) ([]*model.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Post
	for _, p := range r.posts {
		if p.Row == row && (platform == "" || p.Platform == platform) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sortPosts(out)
	return out, nil
}

func (r *PostRepo) FetchDueAndMark(_ context.Context, now time.Time, limit int) ([]*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.Post
	for _, p := range r.posts {
		if p.State != model.PostStatePending || p.ScheduledAt == nil || p.ScheduledAt.After(now) {
			continue
		}
		due = append(due, p)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(*due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*model.Post, 0, len(due))
	for _, p := range due {
		p.State = model.PostStatePublishing
		p.UpdatedAt = now
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// All returns a snapshot of every stored post.
func (r *PostRepo) All() []*model.Post {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Post, 0, len(r.posts))
	for _, p := range r.posts {
		cp := *p
		out = append(out, &cp)
	}
	sortPosts(out)
	return out
}

func sortPosts(ps []*model.Post) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Row != ps[j].Row {
			return ps[i].Row < ps[j].Row
		}
		if ps[i].Platform != ps[j].Platform {
			return ps[i].Platform < ps[j].Platform
		}
		if ps[i].Kind != ps[j].Kind {
			return ps[i].Kind < ps[j].Kind
		}
		return ps[i].TweetIndex < ps[j].TweetIndex
	})
}
