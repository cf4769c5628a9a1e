package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"social-pipeline/internal/config"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/domain/ports/repository"
	ai "social-pipeline/internal/infra/adapters/ai"
	"social-pipeline/internal/infra/adapters/bluesky"
	"social-pipeline/internal/infra/adapters/linkedin"
	"social-pipeline/internal/infra/adapters/telegram"
	"social-pipeline/internal/infra/adapters/twitter"
	"social-pipeline/internal/infra/browser"
	"social-pipeline/internal/infra/browser/session"
	pg "social-pipeline/internal/infra/db/postgres"
	"social-pipeline/internal/infra/extractor"
	"social-pipeline/internal/infra/memstore"
	red "social-pipeline/internal/infra/redis"
	"social-pipeline/internal/infra/scheduler"
	"social-pipeline/internal/infra/sheets"
	"social-pipeline/internal/infra/web"
	"social-pipeline/internal/usecase"
)

type application struct {
	pipeline *usecase.Pipeline
	status   web.StatusSources
}

// wire builds every collaborator from cfg. Resources that need releasing
// are registered on proc.
func wire(ctx context.Context, cfg *config.Config, proc *scheduler.Process, logger *zerolog.Logger) (*application, error) {
	status := web.StatusSources{Sessions: map[string]adapter.SessionStatus{}, LockMode: "none"}

	// ---- Post ledger ----
	var posts repository.PostRepository
	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		proc.OnClose("postgres", func() error { pool.Close(); return nil })
		posts = pg.NewPostRepo(pool, pg.NewTxManager(pool))
	} else {
		logger.Warn().Msg("database.url not set; post ledger is in memory and follow-ups do not survive restarts")
		posts = memstore.NewPostRepo()
	}

	// ---- Redis: claim lock, like cache, daily caps ----
	var (
		lock    repository.Locker
		likes   repository.LikeCache   = memstore.NewLikeCache()
		limiter repository.RateLimiter = memstore.NewRateLimiter()
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		proc.OnClose("redis", rc.Close)
		lock = red.NewLocker(rc)
		likes = red.NewLikeCache(rc, cfg.Redis.TTL)
		limiter = red.NewRateLimiter(rc)
		status.LockMode = "redis"
	} else {
		logger.Warn().Msg("redis.url not set; row claims assume a single running instance")
	}

	// ---- Spreadsheet queue ----
	rows, err := sheets.Open(ctx, cfg.Sheets, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets: %w", err)
	}

	// ---- LLM ----
	router, err := ai.New(ctx, cfg.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("ai: %w", err)
	}
	gen := ai.NewGenerator(router, cfg.AI.DefaultModel, logger)
	budget := ai.NewTokenBudget(cfg.AI.DefaultModel, logger)

	// ---- Browser + extractor ----
	launcher := browser.NewChromeLauncher(cfg.Browser.NavigationTimeout, cfg.Browser.SelectorTimeout)
	ext := extractor.New(logger,
		extractor.NewBrowserFetcher(launcher, cfg.Browser.SettleDelay, cfg.Browser.UserAgent, cfg.Browser.ExecPath),
		extractor.NewHTTPFetcher(0, 0),
	)

	deps := usecase.EngineDeps{
		Rows:      rows,
		Posts:     posts,
		Lock:      lock,
		Extractor: ext,
		LLM:       gen,
		Fitter:    budget,
	}

	// ---- Platforms ----
	if len(cfg.Twitter.Accounts) > 0 {
		var (
			sessAccts []session.Account
			twAccts   []twitter.Account
		)
		for _, a := range cfg.Twitter.Accounts {
			sessAccts = append(sessAccts, session.Account{Name: a.Name, Username: a.Username, Password: a.Password})
			twAccts = append(twAccts, twitter.Account{Name: a.Name, SearchTerms: a.SearchTerms})
		}
		mgr := session.NewManager(launcher, afero.NewOsFs(), cfg.Browser.SessionDir, twitter.Site(), sessAccts, session.Options{
			Headless:        cfg.Browser.Headless,
			ExecPath:        cfg.Browser.ExecPath,
			UserAgent:       cfg.Browser.UserAgent,
			SelectorTimeout: cfg.Browser.SelectorTimeout,
			Settle:          cfg.Browser.SettleDelay,
		}, logger)
		proc.OnClose("twitter sessions", mgr.CloseAll)
		tw := twitter.NewClient(mgr, twAccts, twitter.Options{
			SelectorTimeout: cfg.Browser.SelectorTimeout,
			Settle:          cfg.Browser.SettleDelay,
			DailyLikeCap:    cfg.Workflow.DailyLikeCap,
			Limiter:         limiter,
		}, logger)
		deps.Publishers = append(deps.Publishers, tw)
		deps.Engagers = append(deps.Engagers, tw)
		status.Sessions["twitter"] = mgr
	}

	if cfg.Bluesky.Identifier != "" {
		bs, err := bluesky.NewClient(bluesky.Options{
			Host:         cfg.Bluesky.Host,
			Identifier:   cfg.Bluesky.Identifier,
			Password:     cfg.Bluesky.Password,
			SearchTerms:  cfg.Bluesky.SearchTerms,
			DailyLikeCap: cfg.Workflow.DailyLikeCap,
			Likes:        likes,
			Limiter:      limiter,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("bluesky: %w", err)
		}
		deps.Publishers = append(deps.Publishers, bs)
		deps.Engagers = append(deps.Engagers, bs)
	}

	if cfg.LinkedIn.AccessToken != "" {
		li, err := linkedin.NewClient(linkedin.Options{
			AccessToken:  cfg.LinkedIn.AccessToken,
			RefreshToken: cfg.LinkedIn.RefreshToken,
			ClientID:     cfg.LinkedIn.ClientID,
			ClientSecret: cfg.LinkedIn.ClientSecret,
			AuthorURN:    cfg.LinkedIn.AuthorURN,
			APIBaseURL:   cfg.LinkedIn.APIBaseURL,
			TokenURL:     cfg.LinkedIn.TokenURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("linkedin: %w", err)
		}
		deps.Sharer = li
	}

	if cfg.Telegram.BotToken != "" {
		tg, err := telegram.NewAnnouncer(cfg.Telegram.BotToken, cfg.Telegram.Channel, logger)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		deps.Announcer = tg
	}

	engine := usecase.NewEngine(deps, usecase.EngineOptions{
		BatchSize:       cfg.Workflow.BatchSize,
		MaxItemsPerRun:  cfg.Workflow.MaxItemsPerRun,
		TweetCount:      cfg.Workflow.TweetCount,
		PostsPerItem:    cfg.Workflow.PostsPerItem,
		EngageCount:     cfg.Workflow.EngageCount,
		MaxPromptTokens: cfg.AI.MaxPromptTokens,
		Retry: usecase.RetryPolicy{
			Attempts:  cfg.Workflow.RetryAttempts,
			BaseDelay: cfg.Workflow.RetryBaseDelay,
			Jitter:    cfg.Workflow.RetryJitter,
		},
		FallbackHashtags: cfg.Workflow.FallbackHashtags,
		FollowupMax:      cfg.Followup.MaxPerItem,
		FollowupSpacing:  cfg.Followup.Spacing,
		ClaimLockTTL:     cfg.Redis.ClaimLockTTL,
	}, logger)
	logger.Info().Interface("stages", engine.Stages()).Msg("workflow ready")

	followups := usecase.NewFollowupDispatcher(posts, deps.Publishers, cfg.Followup.DispatchLimit, logger)
	pipeline := usecase.NewPipeline(engine, followups, logger)
	status.Runs = pipeline

	return &application{pipeline: pipeline, status: status}, nil
}
