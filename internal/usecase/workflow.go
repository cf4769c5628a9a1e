package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/domain/ports/repository"
	"social-pipeline/internal/infra/logging"
	"social-pipeline/internal/infra/metrics"
)

const claimLockKey = "social-pipeline:claim"

// TextFitter trims text to a token budget before it goes into a prompt.
type TextFitter interface {
	Fit(text string, maxTokens int) string
}

type EngineOptions struct {
	BatchSize        int
	MaxItemsPerRun   int
	TweetCount       int
	PostsPerItem     int
	EngageCount      int
	MaxPromptTokens  int
	Retry            RetryPolicy
	FallbackHashtags []string
	FollowupMax      int
	FollowupSpacing  time.Duration
	ClaimLockTTL     time.Duration
}

func (o *EngineOptions) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.MaxItemsPerRun <= 0 {
		o.MaxItemsPerRun = 1
	}
	if o.TweetCount <= 0 {
		o.TweetCount = 6
	}
	if o.EngageCount <= 0 {
		o.EngageCount = 7
	}
	if o.MaxPromptTokens <= 0 {
		o.MaxPromptTokens = 3000
	}
	if o.Retry.Attempts <= 0 {
		o.Retry = DefaultRetryPolicy()
	}
	if o.FollowupSpacing <= 0 {
		o.FollowupSpacing = 2 * time.Hour
	}
	if o.ClaimLockTTL <= 0 {
		o.ClaimLockTTL = 2 * time.Minute
	}
}

// EngineDeps are the collaborators of the workflow. Announcer, Sharer,
// Lock and Fitter are optional; a publishing stage exists only for the
// platforms present in Publishers.
type EngineDeps struct {
	Rows       repository.RowStore
	Posts      repository.PostRepository
	Lock       repository.Locker
	Extractor  adapter.ContentExtractor
	LLM        adapter.TextGenerator
	Fitter     TextFitter
	Publishers []adapter.Publisher
	Engagers   []adapter.Engager
	Announcer  adapter.Announcer
	Sharer     adapter.Sharer
}

type stageNode struct {
	name model.Stage
	run  func(ctx context.Context, st *State)
}

// Engine runs the content workflow over the spreadsheet queue.
type Engine struct {
	deps   EngineDeps
	opts   EngineOptions
	parser *TweetParser
	order  []stageNode
	index  map[model.Stage]int
	now    func() time.Time
	log    *zerolog.Logger
}

func NewEngine(deps EngineDeps, opts EngineOptions, logger *zerolog.Logger) *Engine {
	opts.defaults()
	l := logger.With().Str("component", "WorkflowEngine").Logger()
	e := &Engine{
		deps: deps,
		opts: opts,
		now:  time.Now,
		log:  &l,
	}
	e.parser = NewTweetParser(opts.FallbackHashtags, func() time.Time { return e.now() })
	e.build()
	return e
}

// SetClock replaces the time source, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Stages lists the stage names in execution order.
func (e *Engine) Stages() []model.Stage {
	out := make([]model.Stage, len(e.order))
	for i, n := range e.order {
		out[i] = n.name
	}
	return out
}

func (e *Engine) build() {
	add := func(name model.Stage, run func(ctx context.Context, st *State)) {
		e.order = append(e.order, stageNode{name: name, run: run})
	}
	add(model.StageBatchRetrieval, e.batchRetrieval)
	add(model.StageExtractContent, e.extractContent)
	if e.deps.Announcer != nil {
		add(model.StagePostTelegram, e.postToTelegram)
	}
	add(model.StageGenerateTweets, e.generateTweets)
	add(model.StageStoreTweets, e.storeTweets)
	if pub := e.publisher(model.PlatformTwitter); pub != nil {
		add(model.StagePostTwitter, e.publishStage(model.StagePostTwitter, pub))
	}
	if pub := e.publisher(model.PlatformBluesky); pub != nil {
		add(model.StagePostBluesky, e.publishStage(model.StagePostBluesky, pub))
	}
	if e.deps.Sharer != nil {
		add(model.StagePostLinkedIn, e.postToLinkedIn)
	}
	add(model.StageEngagePosts, e.engagePosts)
	add(model.StageScheduleFollowups, e.scheduleFollowups)
	add(model.StageCompletion, e.completion)

	e.index = make(map[model.Stage]int, len(e.order))
	for i, n := range e.order {
		e.index[n.name] = i
	}
}

func (e *Engine) publisher(p model.Platform) adapter.Publisher {
	for _, pub := range e.deps.Publishers {
		if pub != nil && pub.Platform() == p {
			return pub
		}
	}
	return nil
}

// Run executes one workflow pass and returns its final state. Business
// failures are recorded in the state, never returned.
func (e *Engine) Run(ctx context.Context) *State {
	st := newState(uuid.NewString(), e.now())
	ctx = logging.WithRunID(ctx, st.RunID)
	log := logging.With(ctx, e.log)
	defer logging.TraceDuration(log, "Engine.Run")()

	stage := model.StageBatchRetrieval
	for {
		e.order[e.index[stage]].run(ctx, st)
		if stage == model.StageCompletion {
			if len(st.Rows) > 0 && st.ItemsProcessed < e.opts.MaxItemsPerRun {
				st.nextItem()
				stage = model.StageExtractContent
				continue
			}
			break
		}
		stage = e.next(stage, st)
	}
	e.releaseRemaining(ctx, st)

	outcome := "ok"
	if st.Failures > 0 || (st.Error != "" && st.Current == nil) {
		outcome = "error"
	}
	metrics.IncWorkflowRun(st.Mode(), outcome)
	log.Info().
		Str("mode", st.Mode()).
		Int("items", st.ItemsProcessed).
		Int("failures", st.Failures).
		Bool("engaged", st.Engaged).
		Str("error", st.Error).
		Msg("workflow run finished")
	return st
}

// next applies the transition policy after stage.
func (e *Engine) next(stage model.Stage, st *State) model.Stage {
	if st.Error != "" {
		return model.StageCompletion
	}
	if stage == model.StageBatchRetrieval && len(st.Rows) == 0 {
		st.EngagementOnly = true
		return model.StageEngagePosts
	}
	if st.EngagementOnly && stage == model.StageEngagePosts {
		return model.StageCompletion
	}
	i, ok := e.index[stage]
	if !ok || i+1 >= len(e.order) {
		return model.StageCompletion
	}
	return e.order[i+1].name
}

// releaseRemaining puts claimed but unprocessed rows back to pending.
func (e *Engine) releaseRemaining(ctx context.Context, st *State) {
	released := 0
	for _, item := range st.Rows {
		u := model.RowUpdate{}.SetStatus(model.Pending())
		if err := e.deps.Rows.Update(ctx, item.Row, u); err != nil {
			e.log.Warn().Err(err).Int("row", item.Row).Msg("failed to release claimed row")
			continue
		}
		item.Apply(u)
		released++
	}
	st.Rows = nil
	metrics.AddRows("released", released)
}

// Summary condenses a finished state.
func Summary(st *State, finished time.Time) RunSummary {
	return RunSummary{
		RunID:      st.RunID,
		Mode:       st.Mode(),
		StartedAt:  st.StartedAt,
		FinishedAt: finished,
		Items:      st.ItemsProcessed,
		Failures:   st.Failures,
		Engaged:    st.Engaged,
		LastError:  st.Error,
	}
}

var errStageSkipped = errors.New("stage skipped")
