// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sync"

	"social-pipeline/internal/domain/model"
	"social-pipeline/internal/domain/ports/adapter"
)

type fakeExtractor struct {
	mu      sync.Mutex
	calls   []string
	Article model.Article
	Err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (model.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.Err != nil {
		return model.Article{}, f.Err
	}
	a := f.Article
	a.URL = url
	return a, nil
}

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeLLM answers each prompt with GenerateFunc.
type fakeLLM struct {
	mu           sync.Mutex
	prompts      []string
	GenerateFunc func(prompt string) (string, error)
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	fn := f.GenerateFunc
	f.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(prompt)
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakePublisher struct {
	platform model.Platform
	limit    int
	mu       sync.Mutex
	texts    []string
	// FailAt makes the n-th (1-based) publish fail with Err.
	FailAt int
	Err    error
}

var _ adapter.Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) Platform() model.Platform { return f.platform }
func (f *fakePublisher) Limit() int {
	if f.limit == 0 {
		return model.TwitterLimit
	}
	return f.limit
}

func (f *fakePublisher) Publish(ctx context.Context, text string) (model.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.FailAt > 0 && len(f.texts) == f.FailAt {
		return model.PublishResult{}, f.Err
	}
	return model.PublishResult{ID: fmt.Sprintf("%s-%d", f.platform, len(f.texts))}, nil
}

func (f *fakePublisher) Published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeEngager struct {
	platform model.Platform
	mu       sync.Mutex
	calls    int
	Result   adapter.EngageResult
	Err      error
}

func (f *fakeEngager) Platform() model.Platform { return f.platform }

func (f *fakeEngager) Engage(ctx context.Context, max int) (adapter.EngageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.Result, f.Err
}

func (f *fakeEngager) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAnnouncer struct {
	calls int
	Err   error
}

func (f *fakeAnnouncer) Announce(ctx context.Context, title, body, link string) (string, error) {
	f.calls++
	if f.Err != nil {
		return "", f.Err
	}
	return "42", nil
}

type fakeSharer struct {
	commentary string
	link       string
}

func (f *fakeSharer) Share(ctx context.Context, commentary, link string) (string, error) {
	f.commentary, f.link = commentary, link
	return "urn:li:share:1", nil
}
