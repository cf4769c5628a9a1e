package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/domain/ports/repository"
	"social-pipeline/internal/infra/metrics"
)

// FollowupDispatcher publishes scheduled follow-up posts once they are due.
type FollowupDispatcher struct {
	posts      repository.PostRepository
	publishers map[model.Platform]adapter.Publisher
	limit      int
	now        func() time.Time
	log        *zerolog.Logger
}

func NewFollowupDispatcher(posts repository.PostRepository, pubs []adapter.Publisher, limit int, logger *zerolog.Logger) *FollowupDispatcher {
	l := logger.With().Str("component", "FollowupDispatcher").Logger()
	m := make(map[model.Platform]adapter.Publisher, len(pubs))
	for _, p := range pubs {
		if p != nil {
			m[p.Platform()] = p
		}
	}
	if limit <= 0 {
		limit = 10
	}
	return &FollowupDispatcher{posts: posts, publishers: m, limit: limit, now: time.Now, log: &l}
}

// Dispatch publishes every due follow-up and returns how many went out.
// A failed publish marks only that post failed.
func (d *FollowupDispatcher) Dispatch(ctx context.Context) (int, error) {
	due, err := d.posts.FetchDueAndMark(ctx, d.now(), d.limit)
	if err != nil {
		return 0, fmt.Errorf("fetch due follow-ups: %w", err)
	}
	published := 0
	for _, p := range due {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		pub, ok := d.publishers[p.Platform]
		if !ok {
			p.MarkFailed(fmt.Errorf("%w: %s", domain.ErrNoPublisher, p.Platform), d.now())
			d.save(ctx, p)
			metrics.IncFollowup("failed")
			continue
		}
		res, err := pub.Publish(ctx, p.Text)
		if err != nil {
			d.log.Warn().Err(err).Str("post_id", p.ID).Str("platform", string(p.Platform)).Msg("follow-up publish failed")
			p.MarkFailed(err, d.now())
			d.save(ctx, p)
			metrics.IncPost(string(p.Platform), false)
			metrics.IncFollowup("failed")
			continue
		}
		p.MarkPublished(res, d.now())
		d.save(ctx, p)
		metrics.IncPost(string(p.Platform), true)
		metrics.IncFollowup("published")
		published++
	}
	if published > 0 {
		d.log.Info().Int("count", published).Msg("follow-ups published")
	}
	return published, nil
}

func (d *FollowupDispatcher) save(ctx context.Context, p *model.Post) {
	if err := d.posts.Save(context.WithoutCancel(ctx), nil, p); err != nil {
		d.log.Error().Err(err).Str("post_id", p.ID).Msg("failed to save follow-up")
	}
}
