package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"social-pipeline/internal/infra/browser"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPError is a non-200 response from the plain HTTP fetcher.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// BrowserFetcher renders the page in a throwaway headless browser so
// client-side content is present.
type BrowserFetcher struct {
	launcher  browser.Launcher
	settle    time.Duration
	userAgent string
	execPath  string
}

func NewBrowserFetcher(l browser.Launcher, settle time.Duration, userAgent, execPath string) *BrowserFetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &BrowserFetcher{launcher: l, settle: settle, userAgent: userAgent, execPath: execPath}
}

func (f *BrowserFetcher) Name() string { return "browser" }

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	page, err := f.launcher.Launch(ctx, browser.LaunchOptions{Headless: true, UserAgent: f.userAgent, ExecPath: f.execPath})
	if err != nil {
		return "", err
	}
	defer page.Close()
	if err := page.Navigate(ctx, url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := browser.Pause(ctx, f.settle); err != nil {
		return "", err
	}
	return page.HTML(ctx)
}

// HTTPFetcher is a plain GET with a capped body.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes, userAgent: defaultUserAgent}
}

func (f *HTTPFetcher) Name() string { return "http" }

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	return string(body), nil
}
