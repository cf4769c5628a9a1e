package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/infra/metrics"
)

const postLimit = 300

var (
	_ adapter.Publisher = (*Client)(nil)
	_ adapter.Engager   = (*Client)(nil)
)

var (
	tagRe  = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_]+)`)
	linkRe = regexp.MustCompile(`https?://[^\s]+`)
)

type facetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type facetFeature struct {
	Type string `json:"$type"`
	Tag  string `json:"tag,omitempty"`
	URI  string `json:"uri,omitempty"`
}

type facet struct {
	Index    facetIndex     `json:"index"`
	Features []facetFeature `json:"features"`
}

// facets marks hashtags and links. Offsets are UTF-8 byte offsets.
func facets(text string) []facet {
	var out []facet
	for _, m := range tagRe.FindAllStringSubmatchIndex(text, -1) {
		start := m[4] - 1 // include '#'
		out = append(out, facet{
			Index:    facetIndex{ByteStart: start, ByteEnd: m[5]},
			Features: []facetFeature{{Type: "app.bsky.richtext.facet#tag", Tag: text[m[4]:m[5]]}},
		})
	}
	for _, m := range linkRe.FindAllStringIndex(text, -1) {
		uri := strings.TrimRight(text[m[0]:m[1]], ".,;:!?)")
		out = append(out, facet{
			Index:    facetIndex{ByteStart: m[0], ByteEnd: m[0] + len(uri)},
			Features: []facetFeature{{Type: "app.bsky.richtext.facet#link", URI: uri}},
		})
	}
	return out
}

func (c *Client) Platform() model.Platform { return model.PlatformBluesky }
func (c *Client) Limit() int               { return postLimit }

func (c *Client) timestamp() string {
	return c.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

type recordRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

func (c *Client) createRecord(ctx context.Context, collection string, record map[string]any) (recordRef, error) {
	if err := c.ensureSession(ctx); err != nil {
		return recordRef{}, err
	}
	did, _ := c.session()
	var out recordRef
	err := c.call(ctx, http.MethodPost, "com.atproto.repo.createRecord", nil, map[string]any{
		"repo":       did,
		"collection": collection,
		"record":     record,
	}, &out)
	return out, err
}

// Publish creates an app.bsky.feed.post with hashtag and link facets.
func (c *Client) Publish(ctx context.Context, text string) (model.PublishResult, error) {
	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      text,
		"createdAt": c.timestamp(),
		"langs":     []string{"en"},
	}
	if f := facets(text); len(f) > 0 {
		record["facets"] = f
	}
	ref, err := c.createRecord(ctx, "app.bsky.feed.post", record)
	if err != nil {
		return model.PublishResult{}, fmt.Errorf("bluesky post: %w", err)
	}
	c.log.Info().Str("uri", ref.URI).Str("text", model.Truncate(text, 50)).Msg("bluesky post created")
	return model.PublishResult{ID: ref.URI, CID: ref.CID, URL: c.webURL(ref.URI)}, nil
}

// webURL turns at://did/app.bsky.feed.post/rkey into a bsky.app link.
func (c *Client) webURL(uri string) string {
	parts := strings.Split(strings.TrimPrefix(uri, "at://"), "/")
	if len(parts) != 3 {
		return ""
	}
	actor := parts[0]
	if _, handle := c.session(); handle != "" {
		actor = handle
	}
	return "https://bsky.app/profile/" + actor + "/post/" + parts[2]
}

type PostView struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Author struct {
		DID    string `json:"did"`
		Handle string `json:"handle"`
	} `json:"author"`
	Viewer struct {
		Like string `json:"like"`
	} `json:"viewer"`
}

// SearchPosts runs app.bsky.feed.searchPosts. A 400 means the query was
// not accepted and yields no posts.
func (c *Client) SearchPosts(ctx context.Context, q string, limit int) ([]PostView, error) {
	var out struct {
		Posts []PostView `json:"posts"`
	}
	query := url.Values{"q": {q}, "limit": {strconv.Itoa(limit)}}
	err := c.call(ctx, http.MethodGet, "app.bsky.feed.searchPosts", query, nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
		c.log.Warn().Str("term", q).Str("code", apiErr.Code).Msg("search rejected")
		return []PostView{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bluesky search %q: %w", q, err)
	}
	return out.Posts, nil
}

// Like creates an app.bsky.feed.like for the post.
func (c *Client) Like(ctx context.Context, uri, cid string) error {
	_, err := c.createRecord(ctx, "app.bsky.feed.like", map[string]any{
		"$type":     "app.bsky.feed.like",
		"subject":   recordRef{URI: uri, CID: cid},
		"createdAt": c.timestamp(),
	})
	if err != nil {
		return fmt.Errorf("bluesky like %s: %w", uri, err)
	}
	return nil
}

// SearchAndLike likes up to max posts matching term, skipping own posts
// and anything already liked.
func (c *Client) SearchAndLike(ctx context.Context, term string, max int) (int, error) {
	posts, err := c.SearchPosts(ctx, term, max)
	if err != nil {
		return 0, err
	}
	did, _ := c.session()
	liked, failed := 0, 0
	for _, p := range posts {
		if liked >= max {
			break
		}
		if p.URI == "" || p.CID == "" || p.Viewer.Like != "" || p.Author.DID == did {
			continue
		}
		if c.opts.Likes != nil {
			if seen, err := c.opts.Likes.Liked(ctx, string(model.PlatformBluesky), p.URI); err == nil && seen {
				continue
			}
		}
		key, ok := c.allowLike(ctx)
		if !ok {
			break
		}
		if err := c.Like(ctx, p.URI, p.CID); err != nil {
			c.releaseLike(key)
			if ctx.Err() != nil {
				return liked, ctx.Err()
			}
			failed++
			c.log.Warn().Err(err).Str("uri", p.URI).Msg("like failed")
			continue
		}
		liked++
		if c.opts.Likes != nil {
			if _, err := c.opts.Likes.MarkLiked(ctx, string(model.PlatformBluesky), p.URI); err != nil {
				c.log.Warn().Err(err).Msg("failed to record like")
			}
		}
		if c.opts.LikeDelay > 0 {
			t := time.NewTimer(c.opts.LikeDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return liked, ctx.Err()
			case <-t.C:
			}
		}
	}
	metrics.AddLikes(string(model.PlatformBluesky), liked)
	c.log.Info().Str("term", term).Int("found", len(posts)).Int("liked", liked).Int("failed", failed).Msg("bluesky engagement")
	if liked == 0 && failed > 0 {
		return 0, fmt.Errorf("bluesky: all %d likes failed", failed)
	}
	return liked, nil
}

// allowLike takes one slot of the daily cap and returns its key, empty
// when nothing was taken.
func (c *Client) allowLike(ctx context.Context) (string, bool) {
	if c.opts.Limiter == nil || c.opts.DailyLikeCap <= 0 {
		return "", true
	}
	did, _ := c.session()
	key := fmt.Sprintf("rate_limit:likes:bsky:%s:%s", did, c.now().UTC().Format("2006-01-02"))
	ok, err := c.opts.Limiter.Allow(ctx, key, c.opts.DailyLikeCap, 24*time.Hour)
	if err != nil {
		c.log.Warn().Err(err).Msg("like limiter unavailable")
		return "", true
	}
	if !ok {
		c.log.Info().Int("cap", c.opts.DailyLikeCap).Msg("daily like cap reached")
		return "", false
	}
	return key, true
}

// releaseLike returns the slot of a like that did not land. It runs on its
// own context so a cancelled pass still hands the slot back.
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

// Engage likes posts for one random configured search term.
func (c *Client) Engage(ctx context.Context, max int) (adapter.EngageResult, error) {
	if len(c.opts.SearchTerms) == 0 {
		return adapter.EngageResult{}, nil
	}
	term := c.opts.SearchTerms[c.pick(len(c.opts.SearchTerms))]
	liked, err := c.SearchAndLike(ctx, term, max)
	res := adapter.EngageResult{Liked: liked, Attempts: 1}
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Failures = 1
		c.log.Warn().Err(err).Str("term", term).Msg("engagement failed")
	}
	return res, nil
}
