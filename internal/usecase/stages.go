package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/infra/logging"
	"social-pipeline/internal/infra/metrics"
)

const (
	linkedInLimit   = 1300
	telegramBodyCap = 1000
)

func (e *Engine) batchRetrieval(ctx context.Context, st *State) {
	e.execute(ctx, model.StageBatchRetrieval, st, func(ctx context.Context, st *State) (model.RowUpdate, error) {
		log := logging.With(ctx, e.log)
		if e.deps.Lock != nil {
			token, err := e.deps.Lock.TryLock(ctx, claimLockKey, e.opts.ClaimLockTTL)
			if err != nil {
				log.Warn().Err(err).Msg("claim lock unavailable; running engagement only")
				return nil, nil
			}
			defer func() {
				if err := e.deps.Lock.Unlock(context.WithoutCancel(ctx), claimLockKey, token); err != nil {
					log.Warn().Err(err).Msg("failed to release claim lock")
				}
			}()
		}

		items, err := e.deps.Rows.Pending(ctx, e.opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("read pending rows: %w", err)
		}

		valid := make([]*model.WorkItem, 0, len(items))
		invalid := 0
		for _, item := range items {
			now := e.now()
			if !ValidURL(item.URL) {
				u := model.RowUpdate{}.
					SetStatus(model.Failed(fmt.Sprintf("%s: %q", domain.ErrInvalidURL, item.URL), item.Retries(model.StageExtractContent))).
					Touch(model.StageBatchRetrieval, now).
					Touch(model.StageExtractContent, now)
				if err := e.write(ctx, item, u); err != nil {
					log.Error().Err(err).Int("row", item.Row).Msg("failed to mark invalid url")
				}
				invalid++
				continue
			}
			u := model.RowUpdate{}.SetStatus(model.InProgress()).Touch(model.StageBatchRetrieval, now)
			if err := e.write(ctx, item, u); err != nil {
				log.Error().Err(err).Int("row", item.Row).Msg("failed to claim row")
				continue
			}
			valid = append(valid, item)
		}
		st.Rows = valid
		metrics.AddRows("claimed", len(valid))
		metrics.AddRows("invalid", invalid)
		log.Info().Int("claimed", len(valid)).Int("invalid", invalid).Msg("batch retrieved")
		return nil, nil
	})
}

func (e *Engine) extractContent(ctx context.Context, st *State) {
	e.execute(ctx, model.StageExtractContent, st, func(ctx context.Context, st *State) (model.RowUpdate, error) {
		if len(st.Rows) == 0 {
			return nil, errStageSkipped
		}
		st.Current, st.Rows = st.Rows[0], st.Rows[1:]

		article, err := Retry(ctx, e.opts.Retry, func(ctx context.Context) (model.Article, error) {
			a, err := e.deps.Extractor.Extract(ctx, st.Current.URL)
			if err != nil {
				return a, err
			}
			if a.Empty() {
				return a, domain.ErrNoContent
			}
			return a, nil
		})
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", st.Current.URL, err)
		}
		st.Article = article
		return nil, nil
	})
}

func (e *Engine) postToTelegram(ctx context.Context, st *State) {
	e.execute(ctx, model.StagePostTelegram, st, func(ctx context.Context, st *State) (model.RowUpdate, error) {
		if st.Current == nil {
			return nil, errStageSkipped
		}
		body := model.Truncate(st.Article.Text, telegramBodyCap)
		id, err := e.deps.Announcer.Announce(ctx, st.Article.Title, body, st.Current.URL)
		if err != nil {
			metrics.IncPost(string(model.PlatformTelegram), false)
			return nil, fmt.Errorf("telegram: %w", err)
		}
		metrics.IncPost(string(model.PlatformTelegram), true)
		st.PostedToTelegram = true
		return model.RowUpdate{model.PlatformTelegram.ResultColumn(): "message " + id}, nil
	})
}

func (e *Engine) generateTweets(ctx context.Context, st *State) {
	e.execute(ctx, model.StageGenerateTweets, st, func(ctx context.Context, st *State) (model.RowUpdate, error) {
		if st.Current == nil {
			return nil, errStageSkipped
		}
		prompt := tweetPrompt(e.opts.TweetCount, st.Article.Title, e.fit(st.Article.Text), st.Current.URL)
		tweets, err := Retry(ctx, e.opts.Retry, func(ctx context.Context) ([]model.Tweet, error) {
			raw, err := e.deps.LLM.Generate(ctx, prompt)
			if err != nil {
				return nil, err
			}
			return e.parser.Parse(raw)
		})
		if err != nil {
			return nil, fmt.Errorf("generate tweets: %w", err)
		}
		st.Tweets = tweets
		b, err := json.Marshal(tweets)
		if err != nil {
			return nil, err
		}
		return model.RowUpdate{model.ColTweets: string(b)}, nil
	})
}

func (e *Engine) storeTweets(ctx context.Context, st *State) {
	e.execute(ctx, model.StageStoreTweets, st, func(ctx context.Context, st *State) (model.RowUpdate, error) {
		if st.Current == nil {
			return nil, errStageSkipped
		}
		if len(st.Tweets) == 0 {
			return nil, domain.ErrNoTweets
		}
		now := e.now()
		var posts []*model.Post
		for _, pub := range e.deps.Publishers {
			if pub == nil {
				continue
			}
			if err := e.supersede(ctx, st.Current, pub.Platform()); err != nil {
				return nil, err
			}
			for _, t := range st.Tweets {
				posts = append(posts, &model.Post{
					ID:         ulid.Make().String(),
					Row:        st.Current.Row,
					URL:        st.Current.URL,
					TweetIndex: t.Index,
					Platform:   pub.Platform(),
					Kind:       model.PostKindOriginal,
					Text:       t.Render(pub.Limit()),
					State:      model.PostStatePending,
					CreatedAt:  now,
					UpdatedAt:  now,
				})
			}
		}
		if len(posts) > 0 {
			if err := e.deps.Posts.SaveAll(ctx, posts); err != nil {
				return nil, fmt.Errorf("store posts: %w", err)
			}
		}
		st.Posts = posts
		st.Stored = true
		b, err := json.Marshal(st.Tweets)
		if err != nil {
			return nil, err
		}
		return model.RowUpdate{model.ColTweets: string(b)}, nil
	})
}

// supersede fails pending originals left over from an earlier attempt at
// the same row so they are never published alongside the new ones.
func (e *Engine) supersede(ctx context.Context, item *model.WorkItem, p model.Platform) error {
	old, err := e.deps.Posts.ListByRow(ctx, nil, item.Row, p)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}
	for _, post := range old {
		if post.Kind != model.PostKindOriginal || post.State != model.PostStatePending {
			continue
		}
		post.MarkFailed(errors.New("superseded by a newer attempt"), e.now())
		if err := e.deps.Posts.Save(ctx, nil, post); err != nil {
			return fmt.Errorf("supersede post %s: %w", post.ID, err)
		}
	}
	return nil
}

func (e *Engine) publishStage(stage model.Stage, pub adapter.Publisher) func(ctx context.Context, st *State) {
	platform := pub.Platform()
	return func(ctx context.Context, st *State) {
		e.execute(ctx, stage, st, func(ctx context.Context, st *State) (model.RowUpdate, error) {
			if st.Current == nil {
				return nil, errStageSkipped
			}
			var queue []*model.Post
			for _, p := range st.Posts {
				if p.Platform == platform && p.Kind == model.PostKindOriginal && p.State == model.PostStatePending {
					queue = append(queue, p)
				}
			}
			sort.Slice(queue, func(i, j int) bool { return queue[i].TweetIndex < queue[j].TweetIndex })
			if n := e.opts.PostsPerItem; n > 0 && len(queue) > n {
				queue = queue[:n]
			}
			if len(queue) == 0 {
				return nil, fmt.Errorf("%s: %w", platform, domain.ErrNoTweets)
			}

			log := logging.With(ctx, e.log)
			var last model.PublishResult
			for _, post := range queue {
				res, err := pub.Publish(ctx, post.Text)
				if err != nil {
					metrics.IncPost(string(platform), false)
					post.MarkFailed(err, e.now())
					if serr := e.deps.Posts.Save(ctx, nil, post); serr != nil {
						log.Error().Err(serr).Str("post_id", post.ID).Msg("failed to save post")
					}
					return nil, fmt.Errorf("%s tweet %d: %w", platform, post.TweetIndex, err)
				}
				metrics.IncPost(string(platform), true)
				post.MarkPublished(res, e.now())
				if err := e.deps.Posts.Save(ctx, nil, post); err != nil {
					log.Error().Err(err).Str("post_id", post.ID).Msg("failed to save post")
				}
				last = res
			}
			switch platform {
			case model.PlatformTwitter:
				st.Posted = true
			case model.PlatformBluesky:
				st.PostedToBsky = true
			}
			result := fmt.Sprintf("published %d", len(queue))
			if ref := firstNonEmpty(last.URL, last.ID); ref != "" {
				result += " last=" + ref
			}
			return model.RowUpdate{platform.ResultColumn(): result}, nil
		})
	}
}

func (e *Engine) postToLinkedIn(ctx context.Context, st *State) {
	e.execute(ctx, model.StagePostLinkedIn, st, func(ctx context.Context, st *State) (model.RowUpdate, error) {
		if st.Current == nil {
			return nil, errStageSkipped
		}
		commentary, err := e.deps.LLM.Generate(ctx, linkedInPrompt(st.Article.Title, e.fit(st.Article.Text)))
		if err != nil {
			return nil, fmt.Errorf("generate linkedin post: %w", err)
		}
		commentary = model.Truncate(stripFence(commentary), linkedInLimit)
		if commentary == "" {
			return nil, fmt.Errorf("linkedin: %w", domain.ErrNoContent)
		}
		id, err := e.deps.Sharer.Share(ctx, commentary, st.Current.URL)
		if err != nil {
			metrics.IncPost(string(model.PlatformLinkedIn), false)
			return nil, fmt.Errorf("linkedin: %w", err)
		}
		metrics.IncPost(string(model.PlatformLinkedIn), true)
		st.PostedToLinkedIn = true
		return model.RowUpdate{model.PlatformLinkedIn.ResultColumn(): id}, nil
	})
}

func (e *Engine) engagePosts(ctx context.Context, st *State) {
	e.execute(ctx, model.StageEngagePosts, st, func(ctx context.Context, st *State) (model.RowUpdate, error) {
		if st.engagementDone || len(e.deps.Engagers) == 0 {
			return nil, errStageSkipped
		}
		st.engagementDone = true
		log := logging.With(ctx, e.log)
		total := 0
		for _, eng := range e.deps.Engagers {
			res, err := eng.Engage(ctx, e.opts.EngageCount)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Warn().Err(err).Str("platform", string(eng.Platform())).Msg("engagement failed")
				continue
			}
			total += res.Liked
			log.Info().
				Str("platform", string(eng.Platform())).
				Int("liked", res.Liked).
				Int("failures", res.Failures).
				Msg("engagement pass finished")
		}
		st.Engaged = total > 0
		return nil, nil
	})
}

func (e *Engine) scheduleFollowups(ctx context.Context, st *State) {
	e.execute(ctx, model.StageScheduleFollowups, st, func(ctx context.Context, st *State) (model.RowUpdate, error) {
		if st.Current == nil || e.opts.FollowupMax <= 0 {
			return nil, errStageSkipped
		}
		byIndex := map[int][]*model.Post{}
		var indices []int
		for _, p := range st.Posts {
			if p.Kind != model.PostKindOriginal || p.State != model.PostStatePublished {
				continue
			}
			if _, seen := byIndex[p.TweetIndex]; !seen {
				indices = append(indices, p.TweetIndex)
			}
			byIndex[p.TweetIndex] = append(byIndex[p.TweetIndex], p)
		}
		sort.Ints(indices)
		if len(indices) > e.opts.FollowupMax {
			indices = indices[:e.opts.FollowupMax]
		}
		if len(indices) == 0 {
			return model.RowUpdate{}, nil
		}

		now := e.now()
		var followups []*model.Post
		for i, idx := range indices {
			source := byIndex[idx][0]
			text, err := e.deps.LLM.Generate(ctx, followupPrompt(tweetTextFor(st.Tweets, idx, source.Text)))
			if err != nil {
				return nil, fmt.Errorf("generate follow-up for tweet %d: %w", idx, err)
			}
			text = model.NormalizeText(strings.Trim(stripFence(text), `"`))
			if text == "" {
				continue
			}
			at := now.Add(time.Duration(i+1) * e.opts.FollowupSpacing)
			for _, orig := range byIndex[idx] {
				limit := model.TwitterLimit
				if pub := e.publisher(orig.Platform); pub != nil {
					limit = pub.Limit()
				}
				scheduled := at
				followups = append(followups, &model.Post{
					ID:          ulid.Make().String(),
					Row:         orig.Row,
					URL:         orig.URL,
					TweetIndex:  idx,
					Platform:    orig.Platform,
					Kind:        model.PostKindFollowup,
					Text:        model.Truncate(text, limit),
					State:       model.PostStatePending,
					ScheduledAt: &scheduled,
					CreatedAt:   now,
					UpdatedAt:   now,
				})
			}
		}
		if len(followups) > 0 {
			if err := e.deps.Posts.SaveAll(ctx, followups); err != nil {
				return nil, fmt.Errorf("store follow-ups: %w", err)
			}
			for range followups {
				metrics.IncFollowup("scheduled")
			}
		}
		st.FollowupsScheduled = len(followups) > 0
		return model.RowUpdate{}, nil
	})
}

// completion writes the final status of the current row. Without a
// current row it only ends the run.
func (e *Engine) completion(ctx context.Context, st *State) {
	st.Done = true
	item := st.Current
	if item == nil {
		return
	}
	status := model.Complete()
	if st.Error != "" {
		status = model.Failed(st.Error, item.Retries(st.FailedStage))
		st.Failures++
	}
	u := model.RowUpdate{}.SetStatus(status).Touch(model.StageCompletion, e.now())
	ctx = logging.WithRow(logging.WithStage(ctx, string(model.StageCompletion)), item.Row)
	if err := e.write(ctx, item, u); err != nil {
		logging.With(ctx, e.log).Error().Err(err).Msg("failed to write final status")
	}
	st.ItemsProcessed++
	metrics.ObserveStage(string(model.StageCompletion), "ok", 0)
}

func (e *Engine) fit(text string) string {
	if e.deps.Fitter != nil {
		return e.deps.Fitter.Fit(text, e.opts.MaxPromptTokens)
	}
	// roughly four characters per token
	limit := e.opts.MaxPromptTokens * 4
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

func tweetTextFor(tweets []model.Tweet, idx int, fallback string) string {
	for _, t := range tweets {
		if t.Index == idx {
			return t.Text
		}
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
