// Package browsertest provides a scripted in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"social-pipeline/internal/infra/browser"
)

var (
	_ browser.Page     = (*Page)(nil)
	_ browser.Launcher = (*Launcher)(nil)
)

// Typed records one Type call.
type Typed struct {
	Loc  string
	Text string
}

// Page is a fake tab. Element presence is declared with Set; hooks let a
// test change the page in response to navigation and clicks.
type Page struct {
	mu sync.Mutex

	url    string
	html   string
	counts map[string]int
	attrs  map[string]string

	Visits  []string
	Clicks  []string
	Typed   []Typed
	Scrolls int
	Enters  int
	Closed  bool

	NavigateErr error
	ClickErr    map[string]error
	CloseErr    error

	OnNavigate func(p *Page, url string)
	OnClick    func(p *Page, loc browser.Locator, n int)
}

func NewPage() *Page {
	return &Page{counts: map[string]int{}, attrs: map[string]string{}, ClickErr: map[string]error{}}
}

// Set declares n elements matching loc.
func (p *Page) Set(loc browser.Locator, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[loc.String()] = n
}

// SetAttr declares the value of attribute name on the n-th match of loc.
func (p *Page) SetAttr(loc browser.Locator, n int, name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attrs[attrKey(loc, n, name)] = value
}

func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

func (p *Page) SetHTML(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = s
}

// Clicked reports how many times loc was clicked.
func (p *Page) Clicked(loc browser.Locator) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Clicks {
		if c == loc.String() || strings.HasPrefix(c, loc.String()+"#") {
			n++
		}
	}
	return n
}

func attrKey(loc browser.Locator, n int, name string) string {
	return fmt.Sprintf("%s#%d@%s", loc, n, name)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Visits = append(p.Visits, url)
	err := p.NavigateErr
	if err == nil {
		p.url = url
	}
	hook := p.OnNavigate
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, ctx.Err()
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, ctx.Err()
}

func (p *Page) Count(ctx context.Context, loc browser.Locator) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[loc.String()], ctx.Err()
}

func (p *Page) WaitVisible(ctx context.Context, loc browser.Locator, _ time.Duration) error {
	n, err := p.Count(ctx, loc)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("wait for %s: %w", loc, context.DeadlineExceeded)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	return p.ClickNth(ctx, loc, 0)
}

func (p *Page) ClickNth(ctx context.Context, loc browser.Locator, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.counts[loc.String()] <= n {
		p.mu.Unlock()
		return fmt.Errorf("%s: no element %d", loc, n)
	}
	if err := p.ClickErr[loc.String()]; err != nil {
		p.mu.Unlock()
		return err
	}
	key := loc.String()
	if n > 0 {
		key = fmt.Sprintf("%s#%d", loc, n)
	}
	p.Clicks = append(p.Clicks, key)
	hook := p.OnClick
	p.mu.Unlock()
	if hook != nil {
		hook(p, loc, n)
	}
	return nil
}

func (p *Page) Attr(ctx context.Context, loc browser.Locator, n int, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[loc.String()] <= n {
		return "", fmt.Errorf("%s: no element %d", loc, n)
	}
	return p.attrs[attrKey(loc, n, name)], ctx.Err()
}

func (p *Page) Type(ctx context.Context, loc browser.Locator, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[loc.String()] == 0 {
		return fmt.Errorf("%s: not present", loc)
	}
	p.Typed = append(p.Typed, Typed{Loc: loc.String(), Text: text})
	return ctx.Err()
}

func (p *Page) PressEnter(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Enters++
	return ctx.Err()
}

func (p *Page) Scroll(ctx context.Context, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Scrolls++
	return ctx.Err()
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return p.CloseErr
}

// Launcher hands out fake pages.
type Launcher struct {
	mu       sync.Mutex
	Err      error
	NewPage  func(opts browser.LaunchOptions) *Page
	Launched []browser.LaunchOptions
	Pages    []*Page
}

var ErrLaunch = errors.New("launch failed")

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Launched = append(l.Launched, opts)
	if l.Err != nil {
		return nil, l.Err
	}
	var p *Page
	if l.NewPage != nil {
		p = l.NewPage(opts)
	} else {
		p = NewPage()
	}
	l.Pages = append(l.Pages, p)
	return p, nil
}
