// Package session keeps one logged-in browser per account and restores it
// from a persistent profile directory between runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/infra/browser"
	"social-pipeline/internal/infra/metrics"
)

type State int

const (
	Uninitialized State = iota
	BrowserLaunched
	SessionRestored
	NeedsLogin
	LoggedIn
	Closed
)

func (s State) String() string {
	switch s {
	case BrowserLaunched:
		return "browser_launched"
	case SessionRestored:
		return "session_restored"
	case NeedsLogin:
		return "needs_login"
	case LoggedIn:
		return "logged_in"
	case Closed:
		return "closed"
	default:
		return "uninitialized"
	}
}

type Account struct {
	Name     string
	Username string
	Password string
}

// LoginStep fills one field and submits it. Field and Submit are ladders
// tried in order. An Optional step is skipped when its field never shows.
type LoginStep struct {
	Name     string
	Field    []browser.Locator
	Value    func(Account) string
	Submit   []browser.Locator
	Optional bool
}

// Site describes how to tell whether a page is logged in and how to log in.
type Site struct {
	Name      string
	HomeURL   string
	LoginURL  string
	Markers   []browser.Locator // any present means logged in
	LoginForm []browser.Locator // present means logged out
	Steps     []LoginStep
}

type Options struct {
	Headless        bool
	ExecPath        string
	UserAgent       string
	SelectorTimeout time.Duration
	Settle          time.Duration
	InitAttempts    int
}

type session struct {
	account Account
	page    browser.Page
	state   State
}

// Manager owns the browser sessions of every configured account.
type Manager struct {
	launcher browser.Launcher
	fs       afero.Fs
	dir      string
	site     Site
	opts     Options

	mu       sync.Mutex
	accounts map[string]Account
	order    []string
	sessions map[string]*session

	// states mirrors session states for readers that must not wait on a
	// login in progress.
	statesMu sync.RWMutex
	states   map[string]State

	log *zerolog.Logger
}

var _ adapter.SessionStatus = (*Manager)(nil)

func NewManager(launcher browser.Launcher, fs afero.Fs, dir string, site Site, accounts []Account, opts Options, logger *zerolog.Logger) *Manager {
	l := logger.With().Str("component", "SessionManager").Str("site", site.Name).Logger()
	if opts.InitAttempts <= 0 {
		opts.InitAttempts = 3
	}
	if opts.SelectorTimeout <= 0 {
		opts.SelectorTimeout = 30 * time.Second
	}
	m := &Manager{
		launcher: launcher,
		fs:       fs,
		dir:      dir,
		site:     site,
		opts:     opts,
		accounts: make(map[string]Account, len(accounts)),
		sessions: make(map[string]*session, len(accounts)),
		states:   make(map[string]State, len(accounts)),
		log:      &l,
	}
	for _, a := range accounts {
		m.accounts[a.Name] = a
		m.order = append(m.order, a.Name)
	}
	return m
}

// Accounts lists account names in configuration order.
func (m *Manager) Accounts() []string {
	return append([]string(nil), m.order...)
}

func (m *Manager) State(account string) State {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()
	if st, ok := m.states[account]; ok {
		return st
	}
	return Uninitialized
}

func (m *Manager) setState(s *session, st State) {
	s.state = st
	m.statesMu.Lock()
	m.states[s.account.Name] = st
	m.statesMu.Unlock()
}

// EnsureLoggedIn returns a logged-in page for account, launching the
// browser and logging in as needed. An existing session is re-checked on
// every call.
func (m *Manager) EnsureLoggedIn(ctx context.Context, account string) (browser.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[account]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", account, domain.ErrNotFound)
	}
	log := m.log.With().Str("account", account).Logger()

	s := m.sessions[account]
	if s == nil || s.state == Closed || s.state == Uninitialized {
		var err error
		s, err = m.start(ctx, acc)
		if err != nil {
			return nil, err
		}
		m.sessions[account] = s
	} else if s.state == LoggedIn {
		if m.loggedIn(ctx, s.page) {
			return s.page, nil
		}
		log.Warn().Msg("session no longer logged in")
		m.setState(s, NeedsLogin)
	}

	if s.state == SessionRestored {
		m.setState(s, LoggedIn)
		m.report(account, true)
		log.Info().Msg("session restored from profile")
		return s.page, nil
	}

	if err := m.login(ctx, s); err != nil {
		m.report(account, false)
		return nil, err
	}
	m.setState(s, LoggedIn)
	m.report(account, true)
	log.Info().Msg("logged in")
	return s.page, nil
}

// start launches the browser for acc and decides between restored and
// needs-login.
func (m *Manager) start(ctx context.Context, acc Account) (*session, error) {
	profile := filepath.Join(m.dir, acc.Name)
	if err := m.fs.MkdirAll(profile, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir %s: %w", profile, err)
	}
	page, err := m.launcher.Launch(ctx, browser.LaunchOptions{
		ProfileDir: profile,
		Headless:   m.opts.Headless,
		ExecPath:   m.opts.ExecPath,
		UserAgent:  m.opts.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser for %s: %w", acc.Name, err)
	}
	s := &session{account: acc, page: page}
	m.setState(s, BrowserLaunched)

	var navErr error
	for attempt := 1; attempt <= m.opts.InitAttempts; attempt++ {
		if navErr = page.Navigate(ctx, m.site.HomeURL); navErr == nil {
			break
		}
		if ctx.Err() != nil {
			_ = page.Close()
			m.setState(s, Closed)
			return nil, ctx.Err()
		}
		m.log.Warn().Err(navErr).Str("account", acc.Name).Int("attempt", attempt).Msg("home navigation failed")
	}
	if navErr != nil {
		_ = page.Close()
		m.setState(s, Closed)
		return nil, fmt.Errorf("open %s for %s: %w", m.site.HomeURL, acc.Name, navErr)
	}
	m.waitForPage(ctx, page)

	if m.loggedIn(ctx, page) {
		m.setState(s, SessionRestored)
	} else {
		m.setState(s, NeedsLogin)
	}
	return s, nil
}

// waitForPage gives the page time to render either a marker or the login
// form. Not finding either is not an error here.
func (m *Manager) waitForPage(ctx context.Context, page browser.Page) {
	ladder := append(append([]browser.Locator(nil), m.site.Markers...), m.site.LoginForm...)
	if len(ladder) > 0 {
		_, _ = browser.FirstPresent(ctx, page, m.opts.SelectorTimeout, ladder...)
	}
	_ = browser.Pause(ctx, m.opts.Settle)
}

func (m *Manager) loggedIn(ctx context.Context, page browser.Page) bool {
	u, err := page.URL(ctx)
	if err != nil {
		return false
	}
	u = strings.ToLower(u)
	if strings.Contains(u, "login") {
		return false
	}
	for _, loc := range m.site.Markers {
		if n, err := page.Count(ctx, loc); err == nil && n > 0 {
			return true
		}
	}
	if strings.Contains(u, "home") {
		for _, loc := range m.site.LoginForm {
			if n, err := page.Count(ctx, loc); err != nil || n > 0 {
				return false
			}
		}
		return true
	}
	return false
}

func (m *Manager) login(ctx context.Context, s *session) error {
	acc := s.account
	if acc.Username == "" || acc.Password == "" {
		return fmt.Errorf("%s: no credentials: %w", acc.Name, domain.ErrNotLoggedIn)
	}
	if err := s.page.Navigate(ctx, m.site.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	for _, step := range m.site.Steps {
		value := ""
		if step.Value != nil {
			value = step.Value(acc)
		}
		if _, err := browser.TypeFirst(ctx, s.page, m.opts.SelectorTimeout, value, step.Field...); err != nil {
			if step.Optional && errors.Is(err, domain.ErrSelectorNotFound) {
				continue
			}
			return fmt.Errorf("login step %s: %w", step.Name, err)
		}
		if len(step.Submit) > 0 {
			if _, err := browser.ClickFirst(ctx, s.page, m.opts.SelectorTimeout, step.Submit...); err != nil {
				return fmt.Errorf("login step %s submit: %w", step.Name, err)
			}
		}
		if err := browser.Pause(ctx, m.opts.Settle); err != nil {
			return err
		}
	}
	m.waitForPage(ctx, s.page)
	if !m.loggedIn(ctx, s.page) {
		return fmt.Errorf("%s: %w", acc.Name, domain.ErrNotLoggedIn)
	}
	return nil
}

// Status reports which accounts currently hold a logged-in session. It
// does not wait for a login in progress.
func (m *Manager) Status() map[string]bool {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()
	out := make(map[string]bool, len(m.order))
	for _, name := range m.order {
		out[name] = m.states[name] == LoggedIn
	}
	return out
}

// CloseAll closes every open browser. It keeps going on failure and
// returns the joined errors.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, name := range m.order {
		s, ok := m.sessions[name]
		if !ok || s.state == Closed {
			continue
		}
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		m.setState(s, Closed)
		m.report(name, false)
	}
	return errors.Join(errs...)
}

// Close lets the manager be registered as a process closer.
func (m *Manager) Close() error { return m.CloseAll() }

func (m *Manager) report(account string, ok bool) {
	metrics.SetSessionLoggedIn(m.site.Name, account, ok)
}
