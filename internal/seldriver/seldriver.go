// Package seldriver adapts a remote WebDriver (Selenium Grid, chromedriver, geckodriver)
// to the interact Session and Element interfaces.
package seldriver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"

	"github.com/kuitang/webact/internal/errs"
	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/obs"
)

const pollInterval = 100 * time.Millisecond

// Options selects the remote endpoint and browser.
type Options struct {
	// URL is the WebDriver endpoint, e.g. http://localhost:4444/wd/hub.
	URL string
	// Browser is chrome or firefox. Empty means chrome.
	Browser  string
	Headless bool
}

// Session wraps one remote WebDriver session.
type Session struct {
	wd    selenium.WebDriver
	label string
	// fullPage is geckodriver's full-page screenshot endpoint. Empty for other browsers.
	fullPage string
	client   *http.Client
}

var _ interact.Session = (*Session)(nil)

// Dial opens a new remote session.
func Dial(opts Options) (*Session, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Browser))
	if name == "" {
		name = "chrome"
	}
	caps := selenium.Capabilities{"browserName": name}
	switch name {
	case "chrome":
		args := []string{"--no-sandbox", "--disable-dev-shm-usage"}
		if opts.Headless {
			args = append(args, "--headless=new")
		}
		caps.AddChrome(chrome.Capabilities{Args: args})
	case "firefox":
		var args []string
		if opts.Headless {
			args = append(args, "-headless")
		}
		caps.AddFirefox(firefox.Capabilities{Args: args})
	default:
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("seldriver: unsupported browser %q", opts.Browser))
	}

	wd, err := selenium.NewRemote(caps, opts.URL)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "seldriver: could not open session at "+opts.URL, err)
	}
	obs.Pkg("seldriver").Info("browser session opened", "browser", name, "url", opts.URL, "session_id", wd.SessionID())
	s := NewSession(wd, name)
	if name == "firefox" {
		s.fullPage = fullPageEndpoint(opts.URL, wd.SessionID())
	}
	return s, nil
}

// NewSession wraps an existing WebDriver.
func NewSession(wd selenium.WebDriver, label string) *Session {
	return &Session{wd: wd, label: label, client: http.DefaultClient}
}

func fullPageEndpoint(base, sessionID string) string {
	return strings.TrimRight(base, "/") + "/session/" + sessionID + "/moz/screenshot/full"
}

// Close ends the remote session.
func (s *Session) Close() error {
	return s.wd.Quit()
}

func (s *Session) Label() string {
	return s.label
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError("navigate to "+url, s.wd.Get(url))
}

func (s *Session) Eval(ctx context.Context, expression string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.wd.ExecuteScript("return ("+expression+");", nil)
	if err != nil {
		return nil, mapError("evaluate", err)
	}
	return v, nil
}

// Screenshot captures the whole page on Firefox. WebDriver has no standard full-page
// capture, so other browsers return the viewport only.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.fullPage != "" {
		png, err := s.fullPageScreenshot(ctx)
		if err == nil {
			return png, nil
		}
		obs.From(ctx).Warn("full-page screenshot failed, capturing viewport", "pkg", "seldriver", "error", err)
	}
	png, err := s.wd.Screenshot()
	if err != nil {
		return nil, mapError("screenshot", err)
	}
	return png, nil
}

func (s *Session) fullPageScreenshot(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.fullPage, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("full-page screenshot: status %d", resp.StatusCode)
	}
	var reply struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("full-page screenshot: %w", err)
	}
	return base64.StdEncoding.DecodeString(reply.Value)
}

// Locate returns the element matching the CSS selector. It is looked up on every use.
func (s *Session) Locate(selector string) *Element {
	return &Element{s: s, sel: selector}
}

// Element is either a selector resolved on demand or a handle found under another
// element.
type Element struct {
	s   *Session
	sel string
	we  selenium.WebElement
}

var _ interact.Element = (*Element)(nil)

func (e *Element) resolve() (selenium.WebElement, error) {
	if e.we != nil {
		return e.we, nil
	}
	we, err := e.s.wd.FindElement(selenium.ByCSSSelector, e.sel)
	if err != nil {
		return nil, mapError("find "+e.sel, err)
	}
	return we, nil
}

// check reports whether cond holds right now. Lookup failures count as absent.
func (e *Element) check(cond interact.Condition) bool {
	we, err := e.resolve()
	if err != nil {
		return cond == interact.Hidden
	}
	displayed, err := we.IsDisplayed()
	if err != nil {
		return cond == interact.Hidden
	}
	switch cond {
	case interact.Visible:
		return displayed
	case interact.Hidden:
		return !displayed
	case interact.Clickable:
		if !displayed {
			return false
		}
		enabled, err := we.IsEnabled()
		return err == nil && enabled
	}
	return false
}

func (e *Element) WaitFor(ctx context.Context, cond interact.Condition, timeout time.Duration) error {
	switch cond {
	case interact.Visible, interact.Clickable, interact.Hidden:
	default:
		return errs.New(errs.InvalidArgument, "seldriver: unknown condition "+cond.String())
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = max(time.Until(deadline), 0)
	}
	err := e.s.wd.WaitWithTimeoutAndInterval(func(selenium.WebDriver) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return e.check(cond), nil
	}, timeout, pollInterval)
	if err != nil {
		return errs.Timeout(fmt.Sprintf("seldriver: %s not %s within %s", e.describe(), cond, timeout), err)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	return e.do(ctx, "click", func(we selenium.WebElement) error { return we.Click() })
}

func (e *Element) Clear(ctx context.Context) error {
	return e.do(ctx, "clear", func(we selenium.WebElement) error { return we.Clear() })
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	return e.do(ctx, "type", func(we selenium.WebElement) error { return we.SendKeys(text) })
}

func (e *Element) SelectByText(ctx context.Context, text string) error {
	return e.do(ctx, "select option", func(we selenium.WebElement) error {
		opt, err := we.FindElement(selenium.ByXPATH, ".//option[normalize-space(.)="+xpathLiteral(text)+"]")
		if err != nil {
			return fmt.Errorf("cannot locate option with text: %s: %w", text, err)
		}
		return opt.Click()
	})
}

func (e *Element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.do(ctx, "read text", func(we selenium.WebElement) error {
		var err error
		text, err = we.Text()
		return err
	})
	return text, err
}

func (e *Element) Call(ctx context.Context, fn string) (any, error) {
	var v any
	err := e.do(ctx, "evaluate on element", func(we selenium.WebElement) error {
		var err error
		v, err = e.s.wd.ExecuteScript("return ("+fn+")(arguments[0]);", []any{we})
		return err
	})
	return v, err
}

func (e *Element) FindAll(ctx context.Context, tag string) ([]interact.Element, error) {
	var found []selenium.WebElement
	err := e.do(ctx, "find "+tag, func(we selenium.WebElement) error {
		var err error
		found, err = we.FindElements(selenium.ByTagName, tag)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]interact.Element, 0, len(found))
	for _, we := range found {
		out = append(out, &Element{s: e.s, we: we})
	}
	return out, nil
}

func (e *Element) do(ctx context.Context, what string, fn func(selenium.WebElement) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	we, err := e.resolve()
	if err != nil {
		return err
	}
	return mapError(what, fn(we))
}

func (e *Element) describe() string {
	if e.sel != "" {
		return e.sel
	}
	return "element"
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+p+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// mapError codes WebDriver timeouts as ConditionTimeout and everything else as
// InteractionFailed. Already-coded errors pass through.
func mapError(what string, err error) error {
	if err == nil {
		return nil
	}
	var coded *errs.Error
	if errors.As(err, &coded) {
		return err
	}
	var se *selenium.Error
	if errors.As(err, &se) && (se.Err == "timeout" || se.Err == "script timeout") {
		return errs.Timeout("seldriver: "+what, err)
	}
	return errs.Wrap(errs.InteractionFailed, "seldriver: "+what, err)
}
