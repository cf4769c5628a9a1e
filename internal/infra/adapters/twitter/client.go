// Package twitter drives X through a logged-in browser session. It has no
// API credentials; everything goes through the web UI.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/domain/ports/repository"
	"social-pipeline/internal/infra/browser"
	"social-pipeline/internal/infra/metrics"
)

const tweetLimit = 280

var (
	_ adapter.Publisher = (*Client)(nil)
	_ adapter.Engager   = (*Client)(nil)
)

// Sessions hands out logged-in pages per account.
type Sessions interface {
	EnsureLoggedIn(ctx context.Context, account string) (browser.Page, error)
	Status() map[string]bool
}

type Account struct {
	Name        string
	SearchTerms []string
}

type Options struct {
	// Primary is the account that publishes. Defaults to the first account.
	Primary         string
	SelectorTimeout time.Duration
	Settle          time.Duration
	LikeDelay       func() time.Duration
	RetryDelay      time.Duration
	// DailyLikeCap bounds likes per account per UTC day; 0 disables it.
	DailyLikeCap int
	Limiter      repository.RateLimiter
}

type Client struct {
	sessions Sessions
	accounts []Account
	opts     Options
	pick     func(n int) int
	now      func() time.Time
	log      *zerolog.Logger
}

func NewClient(sessions Sessions, accounts []Account, opts Options, logger *zerolog.Logger) *Client {
	l := logger.With().Str("component", "TwitterClient").Logger()
	if opts.Primary == "" && len(accounts) > 0 {
		opts.Primary = accounts[0].Name
	}
	if opts.SelectorTimeout <= 0 {
		opts.SelectorTimeout = 30 * time.Second
	}
	if opts.LikeDelay == nil {
		opts.LikeDelay = func() time.Duration { return time.Second + rand.N(time.Second) }
	}
	return &Client{
		sessions: sessions,
		accounts: accounts,
		opts:     opts,
		pick:     rand.IntN,
		now:      time.Now,
		log:      &l,
	}
}

func (c *Client) Platform() model.Platform { return model.PlatformTwitter }
func (c *Client) Limit() int               { return tweetLimit }

// Status reports login state per account.
func (c *Client) Status() map[string]bool { return c.sessions.Status() }

// Publish posts text from the primary account.
func (c *Client) Publish(ctx context.Context, text string) (model.PublishResult, error) {
	if err := c.Post(ctx, text, c.opts.Primary); err != nil {
		return model.PublishResult{}, err
	}
	// The compose flow does not reveal the new tweet id.
	return model.PublishResult{}, nil
}

// Post composes and sends one tweet as account.
func (c *Client) Post(ctx context.Context, text, account string) error {
	log := c.log.With().Str("account", account).Logger()
	page, err := c.sessions.EnsureLoggedIn(ctx, account)
	if err != nil {
		return fmt.Errorf("twitter %s: %w", account, err)
	}
	if err := page.Navigate(ctx, homeURL); err != nil {
		return fmt.Errorf("twitter %s: open home: %w", account, err)
	}
	steps := []struct {
		name string
		run  func() error
	}{
		{"compose", func() error {
			_, err := browser.ClickFirst(ctx, page, c.opts.SelectorTimeout, composeButton)
			return err
		}},
		{"text", func() error {
			_, err := browser.TypeFirst(ctx, page, c.opts.SelectorTimeout, text, tweetTextarea)
			return err
		}},
		{"send", func() error {
			_, err := browser.ClickFirst(ctx, page, c.opts.SelectorTimeout, tweetButton)
			return err
		}},
	}
	for _, s := range steps {
		if err := browser.Pause(ctx, c.opts.Settle); err != nil {
			return err
		}
		if err := s.run(); err != nil {
			log.Error().Err(err).Str("step", s.name).Msg("tweet failed")
			return fmt.Errorf("twitter %s: %s: %w: %w", account, s.name, domain.ErrPublishFailed, err)
		}
	}
	_ = browser.Pause(ctx, c.opts.Settle)
	log.Info().Str("text", model.Truncate(text, 50)).Msg("tweet posted")
	return nil
}

// Engage runs one search-and-like pass per account, each with a random
// term from its own list.
func (c *Client) Engage(ctx context.Context, max int) (adapter.EngageResult, error) {
	var res adapter.EngageResult
	for _, acc := range c.accounts {
		if len(acc.SearchTerms) == 0 {
			continue
		}
		term := acc.SearchTerms[c.pick(len(acc.SearchTerms))]
		res.Attempts++
		liked, err := c.SearchAndLike(ctx, term, max, acc.Name)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Liked += liked
		if err != nil {
			res.Failures++
			c.log.Warn().Err(err).Str("account", acc.Name).Str("term", term).Msg("engagement failed")
		}
	}
	return res, nil
}

var errNoLikeButtons = errors.New("no like buttons found")

// SearchAndLike searches the live timeline for term and likes up to max
// posts. It makes two attempts and succeeds when at least one like landed.
func (c *Client) SearchAndLike(ctx context.Context, term string, max int, account string) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			if err := browser.Pause(ctx, c.opts.RetryDelay); err != nil {
				return 0, err
			}
		}
		liked, err := c.searchAndLikeOnce(ctx, term, max, account)
		if liked > 0 {
			metrics.AddLikes(string(model.PlatformTwitter), liked)
			c.log.Info().Str("account", account).Str("term", term).Int("liked", liked).Msg("liked tweets")
			return liked, nil
		}
		if errors.Is(err, errDailyCap) {
			return 0, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err == nil {
			err = errNoLikeButtons
		}
		lastErr = err
		c.log.Warn().Err(err).Str("account", account).Int("attempt", attempt).Msg("search and like attempt failed")
	}
	return 0, fmt.Errorf("twitter %s search %q: %w", account, term, lastErr)
}

var errDailyCap = errors.New("daily like cap reached")

func (c *Client) searchAndLikeOnce(ctx context.Context, term string, max int, account string) (int, error) {
	page, err := c.sessions.EnsureLoggedIn(ctx, account)
	if err != nil {
		return 0, err
	}
	if err := c.openSearch(ctx, page, term); err != nil {
		return 0, err
	}
	if _, err := browser.FirstPresent(ctx, page, c.opts.SelectorTimeout/2, results...); err != nil {
		c.log.Debug().Str("account", account).Msg("no search results marker, continuing")
	}

	scrolls := 3
	if account != c.opts.Primary {
		scrolls = 2
	}
	for i := 0; i < scrolls; i++ {
		if err := page.Scroll(ctx, 1000); err != nil {
			return 0, err
		}
		if err := browser.Pause(ctx, c.opts.Settle); err != nil {
			return 0, err
		}
	}

	loc, idx, err := c.findLikeButtons(ctx, page)
	if err != nil {
		return 0, err
	}
	liked := 0
	for _, i := range idx {
		if liked >= max {
			break
		}
		key, ok, err := c.allowLike(ctx, account)
		if err != nil {
			c.log.Warn().Err(err).Msg("like limiter unavailable")
		} else if !ok {
			c.log.Info().Str("account", account).Int("cap", c.opts.DailyLikeCap).Msg("daily like cap reached")
			return liked, errDailyCap
		}
		if err := page.ClickNth(ctx, loc, i); err != nil {
			c.releaseLike(key)
			c.log.Debug().Err(err).Int("index", i).Msg("like click failed")
			continue
		}
		liked++
		if err := browser.Pause(ctx, c.opts.LikeDelay()); err != nil {
			return liked, err
		}
	}
	return liked, nil
}

func (c *Client) openSearch(ctx context.Context, page browser.Page, term string) error {
	direct := fmt.Sprintf(searchURL, url.QueryEscape(term))
	if err := page.Navigate(ctx, direct); err == nil {
		_ = browser.Pause(ctx, c.opts.Settle)
		if u, err := page.URL(ctx); err == nil && strings.Contains(strings.ToLower(u), "search") {
			return nil
		}
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := page.Navigate(ctx, homeURL); err != nil {
		return fmt.Errorf("open home: %w", err)
	}
	box, err := browser.FirstPresent(ctx, page, c.opts.SelectorTimeout, searchBoxes...)
	if err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := page.Click(ctx, box); err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := page.Type(ctx, box, term); err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := page.PressEnter(ctx); err != nil {
		return err
	}
	return browser.Pause(ctx, c.opts.Settle)
}

// findLikeButtons walks the like ladder and returns the first locator with
// buttons whose aria-label mentions like, skipping already-liked posts.
func (c *Client) findLikeButtons(ctx context.Context, page browser.Page) (browser.Locator, []int, error) {
	for _, loc := range likeButtons {
		n, err := page.Count(ctx, loc)
		if err != nil || n == 0 {
			continue
		}
		var idx []int
		for i := 0; i < n; i++ {
			label, err := page.Attr(ctx, loc, i, "aria-label")
			if err != nil {
				continue
			}
			lower := strings.ToLower(label)
			if !strings.Contains(lower, "like") || strings.Contains(lower, "unlike") {
				continue
			}
			idx = append(idx, i)
		}
		if len(idx) > 0 {
			return loc, idx, nil
		}
	}
	return browser.Locator{}, nil, errNoLikeButtons
}

// allowLike takes one slot of the account's daily cap. The key is empty
// when no slot was taken.
func (c *Client) allowLike(ctx context.Context, account string) (string, bool, error) {
	if c.opts.Limiter == nil || c.opts.DailyLikeCap <= 0 {
		return "", true, nil
	}
	key := fmt.Sprintf("rate_limit:likes:twitter:%s:%s", account, c.now().UTC().Format("2006-01-02"))
	ok, err := c.opts.Limiter.Allow(ctx, key, c.opts.DailyLikeCap, 24*time.Hour)
	if err != nil || !ok {
		return "", ok, err
	}
	return key, true, nil
}

func (c *Client) releaseLike(key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.opts.Limiter.Release(ctx, key); err != nil {
		c.log.Warn().Err(err).Msg("failed to release like slot")
	}
}
