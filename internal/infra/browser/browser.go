// Package browser is the thin driver layer between the platform clients and
// a real browser. Pages are addressed with Locators so callers can describe
// a fallback ladder of CSS, XPath and text strategies.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-pipeline/internal/domain"
)

type LocatorKind int

const (
	KindCSS LocatorKind = iota
	KindXPath
	KindText // JavaScript scan over tag elements for text, aria-label or placeholder
)

type Locator struct {
	Kind  LocatorKind
	Query string // CSS selector, XPath expression or tag list for KindText
	Text  string
}

func CSS(q string) Locator   { return Locator{Kind: KindCSS, Query: q} }
func XPath(q string) Locator { return Locator{Kind: KindXPath, Query: q} }

// Text matches elements of tags (a CSS selector list) whose visible text,
// aria-label or placeholder contains text, case-insensitively.
func Text(tags, text string) Locator { return Locator{Kind: KindText, Query: tags, Text: text} }

func (l Locator) String() string {
	switch l.Kind {
	case KindXPath:
		return "xpath=" + l.Query
	case KindText:
		return fmt.Sprintf("text=%s:%q", l.Query, l.Text)
	default:
		return "css=" + l.Query
	}
}

type LaunchOptions struct {
	ProfileDir string // empty uses a throwaway profile
	Headless   bool
	ExecPath   string
	UserAgent  string
}

// Launcher starts a browser and returns its first page.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// Page is one browser tab. Every method honors ctx and its own timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	// Count returns how many elements match loc right now.
	Count(ctx context.Context, loc Locator) (int, error)
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	Click(ctx context.Context, loc Locator) error
	ClickNth(ctx context.Context, loc Locator, n int) error
	Attr(ctx context.Context, loc Locator, n int, name string) (string, error)
	Type(ctx context.Context, loc Locator, text string) error
	PressEnter(ctx context.Context) error
	Scroll(ctx context.Context, dy int) error

	Close() error
}

// Pause waits d or until ctx ends.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FirstPresent walks the ladder and returns the first locator that matches.
// The first rung may wait up to wait for the page to render; later rungs
// are checked without waiting.
func FirstPresent(ctx context.Context, p Page, wait time.Duration, ladder ...Locator) (Locator, error) {
	for i, loc := range ladder {
		if i == 0 && wait > 0 {
			if err := p.WaitVisible(ctx, loc, wait); err == nil {
				return loc, nil
			}
			if ctx.Err() != nil {
				return Locator{}, ctx.Err()
			}
			continue
		}
		n, err := p.Count(ctx, loc)
		if err == nil && n > 0 {
			return loc, nil
		}
		if ctx.Err() != nil {
			return Locator{}, ctx.Err()
		}
	}
	return Locator{}, fmt.Errorf("%w: %v", domain.ErrSelectorNotFound, ladder)
}

// ClickFirst clicks the first rung of the ladder that is present and
// clickable.
func ClickFirst(ctx context.Context, p Page, wait time.Duration, ladder ...Locator) (Locator, error) {
	var errs []error
	for i, loc := range ladder {
		w := time.Duration(0)
		if i == 0 {
			w = wait
		}
		found, err := FirstPresent(ctx, p, w, loc)
		if err != nil {
			if ctx.Err() != nil {
				return Locator{}, ctx.Err()
			}
			continue
		}
		if err := p.Click(ctx, found); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", found, err))
			continue
		}
		return found, nil
	}
	errs = append(errs, fmt.Errorf("%w: %v", domain.ErrSelectorNotFound, ladder))
	return Locator{}, errors.Join(errs...)
}

// TypeFirst types text into the first rung of the ladder that is present.
func TypeFirst(ctx context.Context, p Page, wait time.Duration, text string, ladder ...Locator) (Locator, error) {
	loc, err := FirstPresent(ctx, p, wait, ladder...)
	if err != nil {
		return Locator{}, err
	}
	if err := p.Type(ctx, loc, text); err != nil {
		return loc, fmt.Errorf("type into %s: %w", loc, err)
	}
	return loc, nil
}
