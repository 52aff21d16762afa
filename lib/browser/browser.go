// Package browser wraps a single playwright browser context behind a
// session object with bounded waits and guaranteed release. One session
// per scrape; sessions are never shared between students.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	ErrLaunch            = errors.New("failed to launch browser")
	ErrNavigationTimeout = errors.New("navigation timed out")
	ErrNetwork           = errors.New("network failure")
	ErrElementNotFound   = errors.New("element not found")
	ErrNoSignalMatched   = errors.New("no selector matched")
)

// IsTimeout reports whether an automation error was a timeout rather
// than a hard failure. Playwright does not expose typed errors over its
// driver protocol, so this goes by message, same as the error split the
// login flow presents to users.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNavigationTimeout) || errors.Is(err, ErrNoSignalMatched) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNetwork) || strings.Contains(err.Error(), "net::ERR")
}

func isAlreadyClosed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "closed") || strings.Contains(msg, "target closed")
}

type Options struct {
	// Headless defaults to true; set Headful to watch a scrape locally.
	Headful        bool
	Locale         string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	DefaultTimeout time.Duration
}

type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
}

// NewSession launches a fresh browser process and an isolated context.
// The caller owns the session and must Close it on every exit path;
// leaked browser processes are the most damaging failure class this
// package can produce.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = time.Second * 30
	}
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = 1366
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = 768
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLaunch, err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!opts.Headful),
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("%w: %s", ErrLaunch, err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if opts.Locale != "" {
		contextOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}

	bctx, err := b.NewContext(contextOpts)
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("%w: %s", ErrLaunch, err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("%w: %s", ErrLaunch, err)
	}
	page.SetDefaultTimeout(float64(opts.DefaultTimeout.Milliseconds()))

	return &Session{
		pw:      pw,
		browser: b,
		context: bctx,
		page:    page,
		timeout: opts.DefaultTimeout,
	}, nil
}

// Close releases the page, context and browser process. It is idempotent
// and safe to defer alongside an explicit call; errors from an already
// closed target are swallowed. Closing unblocks any in-flight wait.
func (s *Session) Close() error {
	var errlist []error

	if s.context != nil {
		if err := s.context.Close(); err != nil && !isAlreadyClosed(err) {
			errlist = append(errlist, fmt.Errorf("close context: %w", err))
		}
		s.context = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil && !isAlreadyClosed(err) {
			errlist = append(errlist, fmt.Errorf("close browser: %w", err))
		}
		s.browser = nil
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil && !isAlreadyClosed(err) {
			errlist = append(errlist, fmt.Errorf("stop driver: %w", err))
		}
		s.pw = nil
	}

	return errors.Join(errlist...)
}

func (s *Session) URL() string {
	return s.page.URL()
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		if IsNetwork(err) {
			return fmt.Errorf("%w: %s", ErrNetwork, err)
		}
		return fmt.Errorf("%w: %s", ErrNavigationTimeout, err)
	}
	return nil
}

// WaitVisible blocks until the selector is visible or the timeout
// elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrElementNotFound, selector, err)
	}
	return nil
}

// Fill clears the field first in case the remote form autofills it.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	locator := s.page.Locator(selector).First()
	if err := locator.Clear(); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrElementNotFound, selector, err)
	}
	if err := locator.Fill(value); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrElementNotFound, selector, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.page.Locator(selector).First().Click()
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrElementNotFound, selector, err)
	}
	return nil
}

// Has reports whether at least one node currently matches the selector.
// It does not wait.
func (s *Session) Has(ctx context.Context, selector string) bool {
	if ctx.Err() != nil {
		return false
	}
	count, err := s.page.Locator(selector).Count()
	return err == nil && count > 0
}

// WaitForAny polls a set of selectors and returns the first one that
// matches at least one attached node. This is how layered signal
// detection is built without coupling to a single fragile selector.
func (s *Session) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		for _, selector := range selectors {
			count, err := s.page.Locator(selector).Count()
			if err == nil && count > 0 {
				return selector, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: %s", ErrNoSignalMatched, strings.Join(selectors, ", "))
		}
		time.Sleep(time.Millisecond * 250)
	}
}

// WaitForURL blocks until the page URL matches the glob pattern.
func (s *Session) WaitForURL(ctx context.Context, pattern string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("%w: waiting for %s: %s", ErrNavigationTimeout, pattern, err)
	}
	return nil
}

// WaitSettled waits for the load state to settle, tolerating pages that
// never reach network idle within the bound.
func (s *Session) WaitSettled(ctx context.Context, timeout time.Duration) {
	if ctx.Err() != nil {
		return
	}
	s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

// Keystroke is one step of a focus-traversal sequence.
type Keystroke struct {
	Key   string
	Delay time.Duration
}

// PressKeys plays a keystroke sequence against the page. Keyboard-only
// navigation is tab-count dependent and inherently fragile; the sequence
// is configuration, not code, so UI drift is a config change.
func (s *Session) PressKeys(ctx context.Context, seq []Keystroke) error {
	for _, stroke := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.page.Keyboard().Press(stroke.Key)
		if err != nil {
			return fmt.Errorf("press %q: %w", stroke.Key, err)
		}
		if stroke.Delay > 0 {
			time.Sleep(stroke.Delay)
		}
	}
	return nil
}

// Content returns the full serialized HTML of the current page, for
// parsing with goquery outside the browser process.
func (s *Session) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.Content()
}

// ElementText returns the inner text of the first node matching the
// selector, or "" if it cannot be read.
func (s *Session) ElementText(ctx context.Context, selector string) string {
	if ctx.Err() != nil {
		return ""
	}
	text, err := s.page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(2000),
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// Pause sleeps for fixed dynamic-content settle delays that have no
// observable completion signal in the remote UI.
func (s *Session) Pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
