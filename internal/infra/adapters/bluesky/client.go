// Package bluesky talks to a PDS over XRPC with app-password sessions.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/ports/repository"
)

const refreshMargin = 60 * time.Second

// APIError is a non-2xx XRPC response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bluesky http %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("bluesky http %d: %s", e.Status, e.Message)
}

func (e *APIError) expired() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden ||
		(e.Status == http.StatusBadRequest && e.Code == "ExpiredToken")
}

type Options struct {
	Host        string
	Identifier  string
	Password    string
	SearchTerms []string
	// DailyLikeCap bounds likes per UTC day; 0 disables it.
	DailyLikeCap int
	LikeDelay    time.Duration
	Likes        repository.LikeCache
	Limiter      repository.RateLimiter
	HTTPClient   *http.Client
}

type Client struct {
	opts Options
	http *http.Client

	mu      sync.Mutex
	access  string
	refresh string
	did     string
	handle  string

	pick func(n int) int
	now  func() time.Time
	log  *zerolog.Logger
}

func NewClient(opts Options, logger *zerolog.Logger) (*Client, error) {
	if opts.Identifier == "" || opts.Password == "" {
		return nil, errors.New("bluesky identifier and password are required")
	}
	if opts.Host == "" {
		opts.Host = "https://bsky.social"
	}
	opts.Host = strings.TrimRight(opts.Host, "/")
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	l := logger.With().Str("component", "BlueskyClient").Logger()
	return &Client{opts: opts, http: hc, pick: rand.IntN, now: time.Now, log: &l}, nil
}

type sessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Did        string `json:"did"`
	Handle     string `json:"handle"`
}

// Login creates a fresh session from the app password.
func (c *Client) Login(ctx context.Context) error {
	var out sessionResponse
	body := map[string]string{"identifier": c.opts.Identifier, "password": c.opts.Password}
	if err := c.send(ctx, http.MethodPost, "com.atproto.server.createSession", nil, body, "", &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return fmt.Errorf("bluesky login: %w: %w", domain.ErrUnauthorized, err)
		}
		return fmt.Errorf("bluesky login: %w", err)
	}
	c.setSession(out)
	c.log.Info().Str("did", out.Did).Msg("bluesky session created")
	return nil
}

// Refresh swaps the refresh token for a new session, falling back to a
// full login when the refresh token is rejected.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	rt := c.refresh
	c.mu.Unlock()
	if rt == "" {
		return c.Login(ctx)
	}
	var out sessionResponse
	if err := c.send(ctx, http.MethodPost, "com.atproto.server.refreshSession", nil, nil, rt, &out); err != nil {
		c.log.Warn().Err(err).Msg("refresh rejected, logging in again")
		return c.Login(ctx)
	}
	c.setSession(out)
	c.log.Debug().Msg("bluesky session refreshed")
	return nil
}

func (c *Client) setSession(s sessionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = s.AccessJwt
	c.refresh = s.RefreshJwt
	if s.Did != "" {
		c.did = s.Did
	}
	if s.Handle != "" {
		c.handle = s.Handle
	}
}

// ensureSession logs in when there is no token and refreshes when the
// access token expires within refreshMargin.
func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	access := c.access
	c.mu.Unlock()
	if access == "" {
		return c.Login(ctx)
	}
	if exp, ok := tokenExpiry(access); ok && exp.Sub(c.now()) < refreshMargin {
		return c.Refresh(ctx)
	}
	return nil
}

// tokenExpiry reads exp without verifying the signature; the PDS is the
// only party that needs to trust it.
func tokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// call performs an authenticated XRPC call, refreshing once if the token
// turns out to be expired.
func (c *Client) call(ctx context.Context, method, nsid string, query url.Values, body, out any) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	err := c.send(ctx, method, nsid, query, body, c.token(), out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.expired() {
		return err
	}
	c.log.Warn().Int("status", apiErr.Status).Str("nsid", nsid).Msg("token rejected, refreshing")
	if rerr := c.Refresh(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	return c.send(ctx, method, nsid, query, body, c.token(), out)
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

func (c *Client) session() (did, handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.did, c.handle
}

func (c *Client) send(ctx context.Context, method, nsid string, query url.Values, body any, bearer string, out any) error {
	u := c.opts.Host + "/xrpc/" + nsid
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", nsid, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", nsid, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", nsid, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var xe struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &xe) == nil && xe.Error != "" {
			apiErr.Code, apiErr.Message = xe.Error, xe.Message
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", nsid, err)
	}
	return nil
}
