// Package pwdriver adapts Playwright pages and locators to the interact Session and
// Element interfaces.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/webact/internal/errs"
	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/obs"
)

// Options controls browser launch.
type Options struct {
	// Browser is chromium, firefox or webkit. Empty means chromium.
	Browser  string
	Headless bool
	// DefaultTimeout applies to Playwright calls made without a context deadline.
	DefaultTimeout time.Duration
}

// Runtime owns a Playwright driver process and one launched browser.
type Runtime struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	name    string
	timeout time.Duration
}

// Launch starts Playwright and launches the configured browser.
func Launch(opts Options) (*Runtime, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Browser))
	if name == "" {
		name = "chromium"
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "pwdriver: playwright not available", err)
	}

	var bt playwright.BrowserType
	switch name {
	case "chromium", "chrome":
		bt = pw.Chromium
	case "firefox":
		bt = pw.Firefox
	case "webkit", "safari":
		bt = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("pwdriver: unsupported browser %q", opts.Browser))
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "pwdriver: could not launch "+name, err)
	}

	obs.Pkg("pwdriver").Info("browser launched", "browser", name, "version", browser.Version(), "headless", opts.Headless)
	return &Runtime{
		pw:      pw,
		browser: browser,
		name:    name,
		timeout: opts.DefaultTimeout,
	}, nil
}

// NewSession opens a fresh page in its own browser context.
func (r *Runtime) NewSession() (*Session, error) {
	bctx, err := r.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("pwdriver: could not create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("pwdriver: could not create page: %w", err)
	}
	if r.timeout > 0 {
		page.SetDefaultTimeout(float64(r.timeout.Milliseconds()))
		page.SetDefaultNavigationTimeout(float64(r.timeout.Milliseconds()))
	}
	return NewSession(page, r.name), nil
}

// Close closes the browser and stops Playwright.
func (r *Runtime) Close() error {
	var closeErr error
	if r.browser != nil {
		closeErr = r.browser.Close()
	}
	if r.pw != nil {
		if err := r.pw.Stop(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

// Session wraps one Playwright page.
type Session struct {
	page  playwright.Page
	label string
}

var _ interact.Session = (*Session)(nil)

// NewSession wraps page. label is the browser name used in report messages.
func NewSession(page playwright.Page, label string) *Session {
	return &Session{page: page, label: label}
}

// Page returns the wrapped page.
func (s *Session) Page() playwright.Page {
	return s.page
}

func (s *Session) Label() string {
	return s.label
}

// Navigate loads url and waits for DOMContentLoaded.
func (s *Session) Navigate(ctx context.Context, url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMS(ctx),
	})
	if err != nil {
		return mapError("navigate to "+url, err)
	}
	return nil
}

// Eval evaluates expression in the page. Page.Evaluate takes no timeout, so the call
// is abandoned when ctx ends and its result discarded.
func (s *Session) Eval(ctx context.Context, expression string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := s.page.Evaluate(expression)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, mapError("evaluate", r.err)
		}
		return r.v, nil
	case <-ctx.Done():
		return nil, mapError("evaluate", ctx.Err())
	}
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  timeoutMS(ctx),
	})
	if err != nil {
		return nil, mapError("screenshot", err)
	}
	return png, nil
}

// Locate returns the first element matching selector.
func (s *Session) Locate(selector string) *Element {
	return NewElement(s.page.Locator(selector).First())
}

// Element wraps a Playwright locator.
type Element struct {
	loc playwright.Locator
}

var _ interact.Element = (*Element)(nil)

// NewElement wraps loc.
func NewElement(loc playwright.Locator) *Element {
	return &Element{loc: loc}
}

// Locator returns the wrapped locator.
func (e *Element) Locator() playwright.Locator {
	return e.loc
}

func (e *Element) WaitFor(_ context.Context, cond interact.Condition, timeout time.Duration) error {
	ms := playwright.Float(float64(timeout.Milliseconds()))
	var err error
	switch cond {
	case interact.Visible:
		err = e.loc.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: ms,
		})
	case interact.Hidden:
		err = e.loc.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateHidden,
			Timeout: ms,
		})
	case interact.Clickable:
		// A trial click runs every actionability check without clicking.
		err = e.loc.Click(playwright.LocatorClickOptions{
			Trial:   playwright.Bool(true),
			Timeout: ms,
		})
	default:
		return errs.New(errs.InvalidArgument, "pwdriver: unknown condition "+cond.String())
	}
	if err != nil {
		return mapError("wait for "+cond.String(), err)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	return mapError("click", e.loc.Click(playwright.LocatorClickOptions{Timeout: timeoutMS(ctx)}))
}

func (e *Element) Clear(ctx context.Context) error {
	return mapError("clear", e.loc.Clear(playwright.LocatorClearOptions{Timeout: timeoutMS(ctx)}))
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	return mapError("type", e.loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Timeout: timeoutMS(ctx),
	}))
}

func (e *Element) SelectByText(ctx context.Context, text string) error {
	labels := []string{text}
	_, err := e.loc.SelectOption(playwright.SelectOptionValues{Labels: &labels}, playwright.LocatorSelectOptionOptions{
		Timeout: timeoutMS(ctx),
	})
	return mapError("select option", err)
}

func (e *Element) Text(ctx context.Context) (string, error) {
	text, err := e.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: timeoutMS(ctx)})
	if err != nil {
		return "", mapError("read text", err)
	}
	return text, nil
}

func (e *Element) Call(ctx context.Context, fn string) (any, error) {
	v, err := e.loc.Evaluate(fn, nil, playwright.LocatorEvaluateOptions{Timeout: timeoutMS(ctx)})
	if err != nil {
		return nil, mapError("evaluate on element", err)
	}
	return v, nil
}

func (e *Element) FindAll(_ context.Context, tag string) ([]interact.Element, error) {
	locs, err := e.loc.Locator(tag).All()
	if err != nil {
		return nil, mapError("find "+tag, err)
	}
	out := make([]interact.Element, 0, len(locs))
	for _, loc := range locs {
		out = append(out, NewElement(loc))
	}
	return out, nil
}

// timeoutMS converts the remaining context budget into a Playwright timeout. Nil keeps
// the page default.
func timeoutMS(ctx context.Context) *float64 {
	if ctx == nil {
		return nil
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	remaining := time.Until(deadline).Milliseconds()
	if remaining < 1 {
		remaining = 1
	}
	return playwright.Float(float64(remaining))
}

// mapError codes Playwright timeouts and expired deadlines as ConditionTimeout and everything else as
// InteractionFailed.
func mapError(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Timeout("pwdriver: "+what, err)
	}
	return errs.Wrap(errs.InteractionFailed, "pwdriver: "+what, err)
}
