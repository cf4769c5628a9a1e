//go:build !integration

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/infra/memstore"
	"social-pipeline/internal/infra/metrics"
	"social-pipeline/internal/infra/sheets"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

var sheetHeader = []string{
	"id", "url", "status", "error", "tweets",
	"processing_ts", "content_ts", "retry_count_content",
	"generate_ts", "retry_count_generate", "store_ts", "retry_count_store",
	"post_ts", "retry_count_post", "twitter_result",
	"engagement_ts", "retry_count_engagement",
	"followup_scheduled_ts", "retry_count_followup", "last_update_ts",
}

const fencedTweets = "```json\n" + `[
  {"text": "First take", "hashtags": ["btc"]},
  {"text": "Second take", "hashtags": ["eth"]},
  {"text": "Third take"}
]` + "\n```"

type harness struct {
	engine    *Engine
	sheet     *sheets.MemorySheet
	posts     *memstore.PostRepo
	extractor *fakeExtractor
	llm       *fakeLLM
	twitter   *fakePublisher
	engager   *fakeEngager
}

// row builds a sheet row keyed by header name.
func row(cells map[string]string) []string {
	out := make([]string, len(sheetHeader))
	for i, h := range sheetHeader {
		out[i] = cells[h]
	}
	return out
}

func newHarness(t *testing.T, rows [][]string, tweak func(*EngineDeps, *EngineOptions)) *harness {
	t.Helper()
	logger := zerolog.New(nil)
	grid := append([][]string{sheetHeader}, rows...)
	store, ms := sheets.NewMemoryStore(grid, true, &logger)

	h := &harness{
		sheet:     ms,
		posts:     memstore.NewPostRepo(),
		extractor: &fakeExtractor{Article: model.Article{Title: "Rates", Text: strings.Repeat("Central banks moved again. ", 20)}},
		llm: &fakeLLM{GenerateFunc: func(prompt string) (string, error) {
			if strings.HasPrefix(prompt, "Write one short follow-up") {
				return "And what comes next?", nil
			}
			return fencedTweets, nil
		}},
		twitter: &fakePublisher{platform: model.PlatformTwitter},
		engager: &fakeEngager{platform: model.PlatformTwitter, Result: adapter.EngageResult{Liked: 2, Attempts: 1}},
	}
	deps := EngineDeps{
		Rows:       store,
		Posts:      h.posts,
		Extractor:  h.extractor,
		LLM:        h.llm,
		Publishers: []adapter.Publisher{h.twitter},
		Engagers:   []adapter.Engager{h.engager},
	}
	opts := EngineOptions{
		BatchSize:   5,
		TweetCount:  3,
		Retry:       RetryPolicy{Attempts: 3},
		FollowupMax: 2,
	}
	if tweak != nil {
		tweak(&deps, &opts)
	}
	h.engine = NewEngine(deps, opts, &logger)
	h.engine.SetClock(func() time.Time { return testNow })
	return h
}

func TestBatchRetrieval_ClaimScenarios(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"id": "1", "url": "pending", "retry_count_content": "2"}),
		row(map[string]string{"id": "2", "url": "https://example.com/a", "status": ""}),
		row(map[string]string{"id": "3", "url": "not a url"}),
	}, nil)

	st := newState("run", testNow)
	h.engine.batchRetrieval(context.Background(), st)

	require.Empty(t, st.Error)
	require.Len(t, st.Rows, 1)
	assert.Equal(t, 3, st.Rows[0].Row)

	assert.Equal(t, "in_progress", h.sheet.Cell(3, "status"))
	assert.Equal(t, "2025-06-01T09:00:00Z", h.sheet.Cell(3, "processing_ts"))

	for _, r := range []int{2, 4} {
		assert.Equal(t, "error", h.sheet.Cell(r, "status"), "row %d", r)
		assert.Contains(t, h.sheet.Cell(r, "error"), "invalid url")
		assert.Equal(t, "2025-06-01T09:00:00Z", h.sheet.Cell(r, "content_ts"))
	}
	assert.Equal(t, "2", h.sheet.Cell(2, "retry_count_content"), "counter never decreases")
	assert.Zero(t, h.extractor.Calls())
}

func TestRun_HappyPath(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"id": "1", "url": "https://example.com/a", "retry_count_content": "abc"}),
	}, nil)

	st := h.engine.Run(context.Background())

	require.Empty(t, st.Error)
	assert.True(t, st.Done)
	assert.True(t, st.Stored)
	assert.True(t, st.Posted)
	assert.True(t, st.Engaged)
	assert.True(t, st.FollowupsScheduled)
	assert.Equal(t, 1, st.ItemsProcessed)
	assert.Equal(t, "content", st.Mode())

	assert.Equal(t, "complete", h.sheet.Cell(2, "status"))
	assert.Equal(t, "", h.sheet.Cell(2, "error"))
	assert.Equal(t, "0", h.sheet.Cell(2, "retry_count_content"), "non-numeric counter resets to 0")
	assert.Equal(t, "2025-06-01T09:00:00Z", h.sheet.Cell(2, "generate_ts"))
	assert.Equal(t, "2025-06-01T09:00:00Z", h.sheet.Cell(2, "engagement_ts"))
	assert.True(t, strings.HasPrefix(h.sheet.Cell(2, "twitter_result"), "published 3"))

	var tweets []model.Tweet
	require.NoError(t, json.Unmarshal([]byte(h.sheet.Cell(2, "tweets")), &tweets))
	require.Len(t, tweets, 3)
	for i, tw := range tweets {
		assert.Equal(t, i+1, tw.Index)
	}

	assert.Equal(t, []string{
		"First take #btc",
		"Second take #eth",
		"Third take #blockchain #crypto",
	}, h.twitter.Published())

	var followups []*model.Post
	for _, p := range h.posts.All() {
		switch p.Kind {
		case model.PostKindOriginal:
			assert.Equal(t, model.PostStatePublished, p.State)
			assert.NotEmpty(t, p.RemoteID)
		case model.PostKindFollowup:
			followups = append(followups, p)
		}
	}
	require.Len(t, followups, 2)
	assert.Equal(t, testNow.Add(2*time.Hour), *followups[0].ScheduledAt)
	assert.Equal(t, testNow.Add(4*time.Hour), *followups[1].ScheduledAt)
	assert.Equal(t, model.PostStatePending, followups[0].State)
}

func TestRun_ExtractionFailureIncrementsCounter(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"id": "1", "url": "https://example.com/a", "retry_count_content": "1"}),
	}, nil)
	h.extractor.Err = errors.New("navigation timeout")

	st := h.engine.Run(context.Background())

	assert.Contains(t, st.Error, "navigation timeout")
	assert.Equal(t, model.StageExtractContent, st.FailedStage)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, 3, h.extractor.Calls(), "extraction is retried locally")
	assert.Zero(t, h.llm.Calls())

	assert.Equal(t, "2", h.sheet.Cell(2, "retry_count_content"))
	assert.Equal(t, "error", h.sheet.Cell(2, "status"))
	assert.Contains(t, h.sheet.Cell(2, "error"), "navigation timeout")
	assert.Empty(t, h.sheet.Cell(2, "generate_ts"), "later stages never write")
}

func TestRun_EmptyArticleIsFailure(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"url": "https://example.com/a"}),
	}, nil)
	h.extractor.Article = model.Article{}

	st := h.engine.Run(context.Background())
	assert.Contains(t, st.Error, "no content extracted")
	assert.Equal(t, "1", h.sheet.Cell(2, "retry_count_content"))
}

func TestCompletion_NoCurrentRowIsNoop(t *testing.T) {
	h := newHarness(t, nil, nil)
	st := newState("run", testNow)

	h.engine.completion(context.Background(), st)
	h.engine.completion(context.Background(), st)

	assert.True(t, st.Done)
	assert.Zero(t, st.ItemsProcessed)
	assert.Zero(t, h.sheet.Writes())
}

func TestStages_SkipWhenErrorSet(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"url": "https://example.com/a", "status": "in_progress"}),
	}, nil)
	item, err := model.NewWorkItem(2, map[string]string{"url": "https://example.com/a", "status": "in_progress"})
	require.NoError(t, err)

	st := newState("run", testNow)
	st.Current = item
	st.Error = "earlier failure"
	st.FailedStage = model.StageExtractContent

	ctx := context.Background()
	h.engine.generateTweets(ctx, st)
	h.engine.storeTweets(ctx, st)
	h.engine.publishStage(model.StagePostTwitter, h.twitter)(ctx, st)
	h.engine.engagePosts(ctx, st)
	h.engine.scheduleFollowups(ctx, st)

	assert.Zero(t, h.sheet.Writes())
	assert.Zero(t, h.llm.Calls())
	assert.Zero(t, h.engager.Calls())
	assert.Empty(t, h.twitter.Published())
	assert.Equal(t, "earlier failure", st.Error)
	assert.Nil(t, st.Tweets)
}

func TestRun_EngagementOnlyWhenNothingToClaim(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"url": "https://example.com/done", "status": "complete"}),
	}, nil)

	st := h.engine.Run(context.Background())

	assert.True(t, st.EngagementOnly)
	assert.Equal(t, "engagement", st.Mode())
	assert.True(t, st.Engaged)
	assert.True(t, st.Done)
	assert.Equal(t, 1, h.engager.Calls())
	assert.Zero(t, h.extractor.Calls())
	assert.Zero(t, h.sheet.Writes())
}

func TestRun_EngagementErrorsDoNotFail(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.engager.Err = errors.New("search box not found")

	st := h.engine.Run(context.Background())
	assert.Empty(t, st.Error)
	assert.False(t, st.Engaged)
	assert.True(t, st.Done)
}

func TestRun_ReadErrorWritesNothing(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.sheet.GetErr = errors.New("quota exceeded")

	st := h.engine.Run(context.Background())

	assert.Contains(t, st.Error, "quota exceeded")
	assert.Equal(t, model.StageBatchRetrieval, st.FailedStage)
	assert.True(t, st.Done)
	assert.Zero(t, h.engager.Calls())
	assert.Zero(t, h.sheet.Writes())
}

func TestRun_PublishFailureStopsItem(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"url": "https://example.com/a"}),
	}, nil)
	h.twitter.FailAt = 2
	h.twitter.Err = errors.New("compose button missing")

	st := h.engine.Run(context.Background())

	assert.Contains(t, st.Error, "compose button missing")
	assert.Equal(t, model.StagePostTwitter, st.FailedStage)
	assert.Equal(t, "1", h.sheet.Cell(2, "retry_count_post"))
	assert.Equal(t, "error", h.sheet.Cell(2, "status"))
	assert.Zero(t, h.engager.Calls(), "engagement is skipped after a failure")

	states := map[model.PostState]int{}
	for _, p := range h.posts.All() {
		states[p.State]++
	}
	assert.Equal(t, map[model.PostState]int{
		model.PostStatePublished: 1,
		model.PostStateFailed:    1,
		model.PostStatePending:   1,
	}, states)
}

func TestRun_DrainsUpToMaxItemsAndReleasesRest(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"url": "https://example.com/1"}),
		row(map[string]string{"url": "https://example.com/2"}),
		row(map[string]string{"url": "https://example.com/3"}),
	}, func(_ *EngineDeps, o *EngineOptions) {
		o.MaxItemsPerRun = 2
		o.FollowupMax = -1
	})

	st := h.engine.Run(context.Background())

	assert.Equal(t, 2, st.ItemsProcessed)
	assert.Equal(t, "complete", h.sheet.Cell(2, "status"))
	assert.Equal(t, "complete", h.sheet.Cell(3, "status"))
	assert.Equal(t, "pending", h.sheet.Cell(4, "status"), "unprocessed claim is released")
	assert.Equal(t, 1, h.engager.Calls(), "engagement runs once per run")
}

func TestRun_ClaimLockBusyFallsBackToEngagement(t *testing.T) {
	lock := memstore.NewLocker()
	_, err := lock.TryLock(context.Background(), claimLockKey, time.Hour)
	require.NoError(t, err)

	h := newHarness(t, [][]string{
		row(map[string]string{"url": "https://example.com/a"}),
	}, func(d *EngineDeps, _ *EngineOptions) { d.Lock = lock })

	st := h.engine.Run(context.Background())

	assert.True(t, st.EngagementOnly)
	assert.Equal(t, "", h.sheet.Cell(2, "status"))
	assert.Zero(t, h.sheet.Writes())
}

func TestRun_OptionalChannels(t *testing.T) {
	ann := &fakeAnnouncer{}
	sh := &fakeSharer{}
	h := newHarness(t, [][]string{
		row(map[string]string{"url": "https://example.com/a"}),
	}, func(d *EngineDeps, _ *EngineOptions) {
		d.Announcer = ann
		d.Sharer = sh
	})
	base := h.llm.GenerateFunc
	h.llm.GenerateFunc = func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Write a professional LinkedIn post") {
			return "Rates are moving. What does it mean for you?", nil
		}
		return base(prompt)
	}

	assert.Equal(t, []model.Stage{
		model.StageBatchRetrieval,
		model.StageExtractContent,
		model.StagePostTelegram,
		model.StageGenerateTweets,
		model.StageStoreTweets,
		model.StagePostTwitter,
		model.StagePostLinkedIn,
		model.StageEngagePosts,
		model.StageScheduleFollowups,
		model.StageCompletion,
	}, h.engine.Stages())

	st := h.engine.Run(context.Background())
	require.Empty(t, st.Error)
	assert.True(t, st.PostedToTelegram)
	assert.True(t, st.PostedToLinkedIn)
	assert.Equal(t, 1, ann.calls)
	assert.Equal(t, "https://example.com/a", sh.link)
	assert.Equal(t, "Rates are moving. What does it mean for you?", sh.commentary)
	assert.Equal(t, "message 42", h.sheet.Cell(2, "telegram_result"))
	assert.Equal(t, "urn:li:share:1", h.sheet.Cell(2, "linkedin_result"))
}

func TestRun_RetriedStoreSupersedesStalePosts(t *testing.T) {
	h := newHarness(t, [][]string{
		row(map[string]string{"url": "https://example.com/a"}),
	}, func(_ *EngineDeps, o *EngineOptions) { o.FollowupMax = -1 })
	stale := &model.Post{ID: "stale", Row: 2, Platform: model.PlatformTwitter, Kind: model.PostKindOriginal, State: model.PostStatePending, TweetIndex: 1}
	require.NoError(t, h.posts.Save(context.Background(), nil, stale))

	st := h.engine.Run(context.Background())
	require.Empty(t, st.Error)
	assert.Len(t, h.twitter.Published(), 3)

	old, err := h.posts.ListByRow(context.Background(), nil, 2, model.PlatformTwitter)
	require.NoError(t, err)
	for _, p := range old {
		if p.ID == "stale" {
			assert.Equal(t, model.PostStateFailed, p.State)
		}
	}
}

// likesCounted reads social_likes_total for platform from the default registry.
func likesCounted(t *testing.T, platform model.Platform) float64 {
	t.Helper()
	metrics.MustRegister()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "social_likes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "platform" && lp.GetValue() == string(platform) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRun_EngagementLikesAreCountedByTheAdapterOnly(t *testing.T) {
	h := newHarness(t, nil, nil)
	before := likesCounted(t, model.PlatformTwitter)

	st := h.engine.Run(context.Background())

	require.True(t, st.Engaged)
	assert.Equal(t, 2, h.engager.Result.Liked)
	assert.Equal(t, before, likesCounted(t, model.PlatformTwitter),
		"the engine must not add to the likes counter; engagers record their own likes")
}
