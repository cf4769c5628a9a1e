//go:build !integration

package twitter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/infra/browser"
	"social-pipeline/internal/infra/browser/browsertest"
	"social-pipeline/internal/infra/memstore"
)

type fakeSessions struct {
	pages map[string]*browsertest.Page
	err   error
}

func (f *fakeSessions) EnsureLoggedIn(_ context.Context, account string) (browser.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[account], nil
}

func (f *fakeSessions) Status() map[string]bool {
	out := map[string]bool{}
	for k := range f.pages {
		out[k] = f.err == nil
	}
	return out
}

var likeCSS = likeButtons[0]

// searchPage serves the live search URL and n like buttons with the given
// aria-labels.
func searchPage(labels ...string) *browsertest.Page {
	p := browsertest.NewPage()
	p.Set(likeCSS, len(labels))
	for i, l := range labels {
		p.SetAttr(likeCSS, i, "aria-label", l)
	}
	return p
}

func newTestClient(t *testing.T, s *fakeSessions, accounts []Account, opts Options) *Client {
	t.Helper()
	logger := zerolog.New(nil)
	c := NewClient(s, accounts, opts, &logger)
	c.opts.LikeDelay = func() time.Duration { return 0 }
	c.pick = func(int) int { return 0 }
	return c
}

func TestPost(t *testing.T) {
	p := browsertest.NewPage()
	p.Set(composeButton, 1)
	p.Set(tweetTextarea, 1)
	p.Set(tweetButton, 1)
	c := newTestClient(t, &fakeSessions{pages: map[string]*browsertest.Page{"primary": p}}, []Account{{Name: "primary"}}, Options{})

	_, err := c.Publish(context.Background(), "hello world #go")
	require.NoError(t, err)
	assert.Equal(t, []string{homeURL}, p.Visits)
	assert.Equal(t, []browsertest.Typed{{Loc: tweetTextarea.String(), Text: "hello world #go"}}, p.Typed)
	assert.Equal(t, 1, p.Clicked(composeButton))
	assert.Equal(t, 1, p.Clicked(tweetButton))
}

func TestPost_MissingComposer(t *testing.T) {
	p := browsertest.NewPage()
	c := newTestClient(t, &fakeSessions{pages: map[string]*browsertest.Page{"primary": p}}, []Account{{Name: "primary"}}, Options{})

	err := c.Post(context.Background(), "hi", "primary")
	assert.ErrorIs(t, err, domain.ErrPublishFailed)
	assert.ErrorIs(t, err, domain.ErrSelectorNotFound)
	assert.Contains(t, err.Error(), "compose")
}

func TestPost_NotLoggedIn(t *testing.T) {
	c := newTestClient(t, &fakeSessions{err: domain.ErrNotLoggedIn}, []Account{{Name: "primary"}}, Options{})
	_, err := c.Publish(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
}

func TestSearchAndLike_SkipsLikedPosts(t *testing.T) {
	p := searchPage("Like", "Unlike", "12 Likes. Like", "Like")
	c := newTestClient(t, &fakeSessions{pages: map[string]*browsertest.Page{"primary": p}}, []Account{{Name: "primary"}}, Options{})

	liked, err := c.SearchAndLike(context.Background(), "web3 dev", 2, "primary")
	require.NoError(t, err)
	assert.Equal(t, 2, liked)
	assert.Equal(t, []string{likeCSS.String(), likeCSS.String() + "#2"}, p.Clicks)
	assert.Equal(t, 3, p.Scrolls)
	require.NotEmpty(t, p.Visits)
	assert.Equal(t, "https://x.com/search?q=web3+dev&src=typed_query&f=live", p.Visits[0])
}

func TestSearchAndLike_SecondaryScrollsLess(t *testing.T) {
	p := searchPage("Like")
	s := &fakeSessions{pages: map[string]*browsertest.Page{"secondary": p}}
	c := newTestClient(t, s, []Account{{Name: "primary"}, {Name: "secondary"}}, Options{})

	_, err := c.SearchAndLike(context.Background(), "go", 5, "secondary")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Scrolls)
}

func TestSearchAndLike_FallsBackToSearchBox(t *testing.T) {
	p := searchPage("Like")
	p.OnNavigate = func(p *browsertest.Page, u string) {
		if strings.Contains(u, "/search") {
			p.SetURL(homeURL)
		}
	}
	p.Set(searchBoxes[1], 1)
	c := newTestClient(t, &fakeSessions{pages: map[string]*browsertest.Page{"primary": p}}, []Account{{Name: "primary"}}, Options{})

	liked, err := c.SearchAndLike(context.Background(), "rust", 5, "primary")
	require.NoError(t, err)
	assert.Equal(t, 1, liked)
	assert.Equal(t, []browsertest.Typed{{Loc: searchBoxes[1].String(), Text: "rust"}}, p.Typed)
	assert.Equal(t, 1, p.Enters)
}

func TestSearchAndLike_NoButtonsRetriesThenFails(t *testing.T) {
	p := searchPage()
	c := newTestClient(t, &fakeSessions{pages: map[string]*browsertest.Page{"primary": p}}, []Account{{Name: "primary"}}, Options{})

	liked, err := c.SearchAndLike(context.Background(), "go", 5, "primary")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, errNoLikeButtons))
	assert.Zero(t, liked)
	assert.Len(t, p.Visits, 2)
}

func TestSearchAndLike_DailyCap(t *testing.T) {
	p := searchPage("Like", "Like", "Like")
	c := newTestClient(t, &fakeSessions{pages: map[string]*browsertest.Page{"primary": p}}, []Account{{Name: "primary"}},
		Options{DailyLikeCap: 2, Limiter: memstore.NewRateLimiter()})

	liked, err := c.SearchAndLike(context.Background(), "go", 5, "primary")
	require.NoError(t, err)
	assert.Equal(t, 2, liked)

	liked, err = c.SearchAndLike(context.Background(), "go", 5, "primary")
	require.NoError(t, err)
	assert.Zero(t, liked)
	assert.Len(t, p.Clicks, 2)
}

func TestSearchAndLike_FailedClicksKeepQuota(t *testing.T) {
	p := searchPage("Like", "Like", "Like")
	p.ClickErr = map[string]error{likeCSS.String(): errors.New("element detached")}
	c := newTestClient(t, &fakeSessions{pages: map[string]*browsertest.Page{"primary": p}}, []Account{{Name: "primary"}},
		Options{DailyLikeCap: 2, Limiter: memstore.NewRateLimiter()})

	liked, err := c.SearchAndLike(context.Background(), "go", 5, "primary")
	assert.Error(t, err)
	assert.Zero(t, liked)

	p.ClickErr = nil
	liked, err = c.SearchAndLike(context.Background(), "go", 5, "primary")
	require.NoError(t, err)
	assert.Equal(t, 2, liked, "failed clicks must not use up the daily cap")
}

func TestEngage_EveryAccountWithTerms(t *testing.T) {
	primary := searchPage("Like", "Like")
	secondary := searchPage()
	s := &fakeSessions{pages: map[string]*browsertest.Page{"primary": primary, "secondary": secondary, "idle": browsertest.NewPage()}}
	c := newTestClient(t, s, []Account{
		{Name: "primary", SearchTerms: []string{"golang"}},
		{Name: "secondary", SearchTerms: []string{"rust"}},
		{Name: "idle"},
	}, Options{})

	res, err := c.Engage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Liked)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Failures)
	assert.Contains(t, secondary.Visits[0], "q=rust")
}
