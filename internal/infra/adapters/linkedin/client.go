// Package linkedin shares links through the UGC posts API.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/ports/adapter"
)

var _ adapter.Sharer = (*Client)(nil)

type Options struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	// AuthorURN is urn:li:organization:<id> or urn:li:person:<id>; a bare
	// id is taken as an organization.
	AuthorURN  string
	APIBaseURL string
	TokenURL   string
	HTTPClient *http.Client
}

type Client struct {
	base   string
	author string
	conf   *oauth2.Config
	http   *http.Client

	mu    sync.Mutex
	token *oauth2.Token

	log *zerolog.Logger
}

func NewClient(opts Options, logger *zerolog.Logger) (*Client, error) {
	if opts.AccessToken == "" {
		return nil, errors.New("linkedin access token is required")
	}
	author, err := authorURN(opts.AuthorURN)
	if err != nil {
		return nil, err
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimRight(opts.APIBaseURL, "/")
	if base == "" {
		base = "https://api.linkedin.com"
	}
	c := &Client{
		base:   base,
		author: author,
		http:   hc,
		token:  &oauth2.Token{AccessToken: opts.AccessToken, RefreshToken: opts.RefreshToken, TokenType: "Bearer"},
	}
	if opts.RefreshToken != "" && opts.ClientID != "" {
		c.conf = &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}
	l := logger.With().Str("component", "LinkedInClient").Logger()
	c.log = &l
	return c, nil
}

func authorURN(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", errors.New("linkedin author urn is required")
	case strings.HasPrefix(s, "urn:li:organization:"), strings.HasPrefix(s, "urn:li:person:"):
		return s, nil
	case strings.HasPrefix(s, "urn:li:company:"):
		return "urn:li:organization:" + strings.TrimPrefix(s, "urn:li:company:"), nil
	case strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) == -1:
		return "urn:li:organization:" + s, nil
	default:
		return "", fmt.Errorf("linkedin author %q: %w", s, domain.ErrInvalidArgument)
	}
}

type ugcPost struct {
	Author          string         `json:"author"`
	LifecycleState  string         `json:"lifecycleState"`
	SpecificContent map[string]any `json:"specificContent"`
	Visibility      map[string]any `json:"visibility"`
}

// Share publishes commentary followed by link and returns the post id.
// A rejected token is refreshed once before giving up.
func (c *Client) Share(ctx context.Context, commentary, link string) (string, error) {
	text := strings.TrimSpace(commentary)
	if link != "" {
		text += "\n\n" + link
	}
	body, err := json.Marshal(ugcPost{
		Author:         c.author,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		Visibility: map[string]any{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	})
	if err != nil {
		return "", err
	}

	id, status, err := c.post(ctx, body)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.log.Warn().Int("status", status).Msg("access token rejected, refreshing")
		if rerr := c.refresh(ctx); rerr != nil {
			return "", errors.Join(err, rerr)
		}
		id, _, err = c.post(ctx, body)
	}
	if err != nil {
		return "", err
	}
	c.log.Info().Str("id", id).Msg("linkedin post shared")
	return id, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v2/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	c.mu.Lock()
	c.token.SetAuthHeader(req)
	c.mu.Unlock()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("linkedin share: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("linkedin share: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			err = fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
		}
		return "", resp.StatusCode, err
	}
	if id := resp.Header.Get("X-RestLi-Id"); id != "" {
		return id, resp.StatusCode, nil
	}
	var out struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &out)
	return out.ID, resp.StatusCode, nil
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conf == nil || c.token.RefreshToken == "" {
		return fmt.Errorf("linkedin: no refresh credentials: %w", domain.ErrUnauthorized)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.token.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("linkedin token refresh: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = c.token.RefreshToken
	}
	c.token = tok
	return nil
}
