package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

var (
	_ Launcher = (*ChromeLauncher)(nil)
	_ Page     = (*chromePage)(nil)
)

// ChromeLauncher starts Chrome through the DevTools protocol.
type ChromeLauncher struct {
	NavTimeout time.Duration
	OpTimeout  time.Duration
}

func NewChromeLauncher(navTimeout, opTimeout time.Duration) *ChromeLauncher {
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	if opTimeout <= 0 {
		opTimeout = 30 * time.Second
	}
	return &ChromeLauncher{NavTimeout: navTimeout, OpTimeout: opTimeout}
}

func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1280, 800),
	)
	if opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	// The browser outlives ctx; ctx only bounds the start-up.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	p := &chromePage{
		ctx:        tabCtx,
		navTimeout: l.NavTimeout,
		opTimeout:  l.OpTimeout,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}
	if err := p.start(ctx, l.NavTimeout); err != nil {
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return p, nil
}

type chromePage struct {
	ctx        context.Context
	cancel     func()
	navTimeout time.Duration
	opTimeout  time.Duration
}

// start allocates the browser and its first tab. The allocating Run must
// carry no deadline: chromedp ties the Chrome process to that context.
// Start-up is bounded by timeout and ctx from the outside instead.
func (p *chromePage) start(ctx context.Context, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(p.ctx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			p.cancel()
		}
		return err
	case <-timer.C:
		p.cancel()
		<-done
		return fmt.Errorf("browser did not start within %s", timeout)
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// run executes actions on the tab, bounded by timeout and by the caller ctx.
// It must only be used after start, so runCtx never owns the browser.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, p.navTimeout, chromedp.Navigate(url))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, p.opTimeout, chromedp.Location(&u))
	return u, err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var s string
	err := p.run(ctx, p.opTimeout, chromedp.OuterHTML("html", &s, chromedp.ByQuery))
	return s, err
}

const markAttr = "data-sp-hit"

// markText tags every element matching a KindText locator with markAttr
// and returns the number of hits.
func (p *chromePage) markText(ctx context.Context, loc Locator) (int, error) {
	tags, _ := json.Marshal(loc.Query)
	text, _ := json.Marshal(loc.Text)
	js := fmt.Sprintf(`(function(tags, text) {
  document.querySelectorAll('[%[1]s]').forEach(function(e) { e.removeAttribute('%[1]s'); });
  var want = text.toLowerCase(), n = 0;
  document.querySelectorAll(tags).forEach(function(el) {
    var label = [el.innerText, el.getAttribute('aria-label'), el.getAttribute('placeholder')]
      .filter(Boolean).join(' ').toLowerCase();
    if (label.indexOf(want) >= 0) { el.setAttribute('%[1]s', String(n)); n++; }
  });
  return n;
})(%[2]s, %[3]s)`, markAttr, tags, text)
	var n int
	err := p.run(ctx, p.opTimeout, chromedp.Evaluate(js, &n))
	return n, err
}

// target resolves loc to a query usable by chromedp.
func (p *chromePage) target(ctx context.Context, loc Locator, all bool) (string, chromedp.QueryOption, error) {
	switch loc.Kind {
	case KindXPath:
		return loc.Query, chromedp.BySearch, nil
	case KindText:
		if _, err := p.markText(ctx, loc); err != nil {
			return "", nil, err
		}
		if all {
			return "[" + markAttr + "]", chromedp.ByQueryAll, nil
		}
		return "[" + markAttr + `="0"]`, chromedp.ByQuery, nil
	default:
		if all {
			return loc.Query, chromedp.ByQueryAll, nil
		}
		return loc.Query, chromedp.ByQuery, nil
	}
}

func (p *chromePage) nodes(ctx context.Context, loc Locator) ([]*cdp.Node, error) {
	q, by, err := p.target(ctx, loc, true)
	if err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	err = p.run(ctx, p.opTimeout, chromedp.Nodes(q, &nodes, by, chromedp.AtLeast(0)))
	return nodes, err
}

func (p *chromePage) Count(ctx context.Context, loc Locator) (int, error) {
	if loc.Kind == KindText {
		return p.markText(ctx, loc)
	}
	nodes, err := p.nodes(ctx, loc)
	return len(nodes), err
}

func (p *chromePage) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	if loc.Kind != KindText {
		q, by, _ := p.target(ctx, loc, false)
		return p.run(ctx, timeout, chromedp.WaitVisible(q, by))
	}
	deadline := time.Now().Add(timeout)
	for {
		n, err := p.markText(ctx, loc)
		if err == nil && n > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wait for %s: %w", loc, context.DeadlineExceeded)
		}
		if err := Pause(ctx, 250*time.Millisecond); err != nil {
			return err
		}
	}
}

func (p *chromePage) Click(ctx context.Context, loc Locator) error {
	q, by, err := p.target(ctx, loc, false)
	if err != nil {
		return err
	}
	return p.run(ctx, p.opTimeout, chromedp.Click(q, by, chromedp.NodeVisible))
}

func (p *chromePage) ClickNth(ctx context.Context, loc Locator, n int) error {
	nodes, err := p.nodes(ctx, loc)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(nodes) {
		return fmt.Errorf("%s: index %d out of %d", loc, n, len(nodes))
	}
	return p.run(ctx, p.opTimeout,
		chromedp.ScrollIntoView([]cdp.NodeID{nodes[n].NodeID}, chromedp.ByNodeID),
		chromedp.MouseClickNode(nodes[n]),
	)
}

func (p *chromePage) Attr(ctx context.Context, loc Locator, n int, name string) (string, error) {
	nodes, err := p.nodes(ctx, loc)
	if err != nil {
		return "", err
	}
	if n < 0 || n >= len(nodes) {
		return "", fmt.Errorf("%s: index %d out of %d", loc, n, len(nodes))
	}
	v, _ := nodes[n].Attribute(name)
	return v, nil
}

func (p *chromePage) Type(ctx context.Context, loc Locator, text string) error {
	q, by, err := p.target(ctx, loc, false)
	if err != nil {
		return err
	}
	return p.run(ctx, p.opTimeout, chromedp.Focus(q, by), chromedp.SendKeys(q, text, by))
}

func (p *chromePage) PressEnter(ctx context.Context) error {
	return p.run(ctx, p.opTimeout, chromedp.KeyEvent(kb.Enter))
}

func (p *chromePage) Scroll(ctx context.Context, dy int) error {
	return p.run(ctx, p.opTimeout, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", dy), nil))
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}
