//go:build !integration

package linkedin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-pipeline/internal/domain"
)

func newServer(t *testing.T, validToken string, shares *[]map[string]any, refreshes *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Expired access token"}`))
			return
		}
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*shares = append(*shares, body)
		w.Header().Set("X-RestLi-Id", "urn:li:share:7001")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/oauth/v2/accessToken", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, access, refresh string) *Client {
	t.Helper()
	logger := zerolog.New(nil)
	c, err := NewClient(Options{
		AccessToken:  access,
		RefreshToken: refresh,
		ClientID:     "client",
		ClientSecret: "secret",
		AuthorURN:    "80256853",
		APIBaseURL:   srv.URL,
		TokenURL:     srv.URL + "/oauth/v2/accessToken",
	}, &logger)
	require.NoError(t, err)
	return c
}

func TestShare(t *testing.T) {
	var shares []map[string]any
	var refreshes atomic.Int32
	srv := newServer(t, "good", &shares, &refreshes)
	c := newTestClient(t, srv, "good", "")

	id, err := c.Share(context.Background(), "  Big news.  ", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:7001", id)
	require.Len(t, shares, 1)

	body := shares[0]
	assert.Equal(t, "urn:li:organization:80256853", body["author"])
	assert.Equal(t, "PUBLISHED", body["lifecycleState"])
	assert.Equal(t, map[string]any{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"}, body["visibility"])
	content := body["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	assert.Equal(t, "Big news.\n\nhttps://example.com/a", content["shareCommentary"].(map[string]any)["text"])
	assert.Zero(t, refreshes.Load())
}

func TestShare_RefreshesOnceOnUnauthorized(t *testing.T) {
	var shares []map[string]any
	var refreshes atomic.Int32
	srv := newServer(t, "fresh", &shares, &refreshes)
	c := newTestClient(t, srv, "stale", "rt-1")

	id, err := c.Share(context.Background(), "post", "")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:7001", id)
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Len(t, shares, 1)
}

func TestShare_UnauthorizedWithoutRefreshToken(t *testing.T) {
	var shares []map[string]any
	var refreshes atomic.Int32
	srv := newServer(t, "fresh", &shares, &refreshes)
	c := newTestClient(t, srv, "stale", "")

	_, err := c.Share(context.Background(), "post", "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, shares)
}

func TestAuthorURN(t *testing.T) {
	cases := map[string]string{
		"123":                     "urn:li:organization:123",
		"urn:li:person:abc":       "urn:li:person:abc",
		"urn:li:organization:9":   "urn:li:organization:9",
		"urn:li:company:80256853": "urn:li:organization:80256853",
	}
	for in, want := range cases {
		got, err := authorURN(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := authorURN("someone")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = authorURN("")
	assert.Error(t, err)
}
