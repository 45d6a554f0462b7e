// Package cdpdriver drives Chrome over the DevTools protocol with chromedp and adapts it
// to the interact Session and Element interfaces.
//
// Elements are addressed by a JavaScript expression that resolves the DOM node on every
// call, so stale handles never outlive a re-render. Top-level elements also keep their
// CSS selector and use chromedp's native input actions.
package cdpdriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/kuitang/webact/internal/errs"
	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/obs"
)

const (
	// Label is the browser name used in report messages.
	Label = "chrome"

	pollInterval = 100 * time.Millisecond
)

// Options controls the Chrome process.
type Options struct {
	Headless bool
	// ExecPath overrides the Chrome binary. Empty uses chromedp's lookup.
	ExecPath string
	Width    int
	Height   int
}

// Session owns one Chrome process and its first tab.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

var _ interact.Session = (*Session)(nil)

// Start launches Chrome and opens a tab. The returned session outlives ctx only until
// Close is called or ctx is cancelled.
func Start(ctx context.Context, opts Options) (*Session, error) {
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 900
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(width, height),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	logger := obs.Pkg("cdpdriver")
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	// The first Run starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, errs.Wrap(errs.Unavailable, "cdpdriver: could not start chrome", err)
	}
	logger.Info("browser launched", "browser", Label, "headless", opts.Headless)
	return &Session{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel}, nil
}

// Close closes the tab and stops Chrome.
func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
}

func (s *Session) Label() string {
	return Label
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate to "+url, chromedp.Navigate(url))
}

func (s *Session) Eval(ctx context.Context, expression string) (any, error) {
	script := fmt.Sprintf(`(() => { const r = (%s); return {v: r === undefined ? null : r}; })()`, expression)
	return s.eval(ctx, "evaluate", script)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	// Quality 100 selects lossless PNG.
	if err := s.run(ctx, "screenshot", chromedp.FullScreenshot(&png, 100)); err != nil {
		return nil, err
	}
	return png, nil
}

// Locate returns the first element matching the CSS selector.
func (s *Session) Locate(selector string) *Element {
	return &Element{
		s:    s,
		sel:  selector,
		expr: "document.querySelector(" + jsString(selector) + ")",
	}
}

// run executes actions on the tab, bounded by the caller's deadline and cancellation.
func (s *Session) run(ctx context.Context, what string, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Timeout("cdpdriver: "+what, context.DeadlineExceeded)
	}
	return errs.Wrap(errs.InteractionFailed, "cdpdriver: "+what, err)
}

// eval runs a script that returns {v: value} and unwraps v. The wrapper keeps null and
// undefined results from being reported as errors.
func (s *Session) eval(ctx context.Context, what, script string) (any, error) {
	var res struct {
		V any `json:"v"`
	}
	if err := s.run(ctx, what, chromedp.Evaluate(script, &res)); err != nil {
		return nil, err
	}
	return res.V, nil
}

// Element is a DOM element resolved by a JavaScript expression.
type Element struct {
	s *Session
	// sel is empty for elements found under another element.
	sel  string
	expr string
}

var _ interact.Element = (*Element)(nil)

const (
	visibleFn = `el => {
		if (!el || !el.isConnected) return false;
		const st = window.getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden') return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 || r.height > 0;
	}`
	clickableFn   = `el => (` + visibleFn + `)(el) && !el.disabled`
	hiddenFn      = `el => !(` + visibleFn + `)(el)`
	textFn        = `el => el.innerText`
	clickFn       = `el => { el.click(); }`
	clearFn       = `el => { el.value = ''; el.dispatchEvent(new Event('input', {bubbles: true})); }`
	focusFn       = `el => { el.focus(); }`
	selectTextFmt = `el => {
		const want = %s;
		for (const opt of el.options || []) {
			if (opt.text.trim() === want) {
				el.value = opt.value;
				el.dispatchEvent(new Event('input', {bubbles: true}));
				el.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
		return false;
	}`
)

func (e *Element) WaitFor(ctx context.Context, cond interact.Condition, timeout time.Duration) error {
	var fn string
	switch cond {
	case interact.Visible:
		fn = visibleFn
	case interact.Clickable:
		fn = clickableFn
	case interact.Hidden:
		fn = hiddenFn
	default:
		return errs.New(errs.InvalidArgument, "cdpdriver: unknown condition "+cond.String())
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	script := e.check(fn)
	for {
		v, err := e.s.eval(waitCtx, "wait for "+cond.String(), script)
		if err == nil {
			if ok, _ := v.(bool); ok {
				return nil
			}
		}
		select {
		case <-waitCtx.Done():
			return errs.Timeout(fmt.Sprintf("cdpdriver: %s not %s within %s", e.describe(), cond, timeout), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (e *Element) Click(ctx context.Context) error {
	if e.sel != "" {
		return e.s.run(ctx, "click", chromedp.Click(e.sel, chromedp.ByQuery))
	}
	_, err := e.Call(ctx, clickFn)
	return err
}

func (e *Element) Clear(ctx context.Context) error {
	if e.sel != "" {
		return e.s.run(ctx, "clear", chromedp.Clear(e.sel, chromedp.ByQuery))
	}
	_, err := e.Call(ctx, clearFn)
	return err
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	if e.sel != "" {
		return e.s.run(ctx, "type", chromedp.SendKeys(e.sel, text, chromedp.ByQuery))
	}
	if _, err := e.Call(ctx, focusFn); err != nil {
		return err
	}
	return e.s.run(ctx, "type", chromedp.KeyEvent(text))
}

func (e *Element) SelectByText(ctx context.Context, text string) error {
	v, err := e.Call(ctx, fmt.Sprintf(selectTextFmt, jsString(text)))
	if err != nil {
		return err
	}
	if ok, _ := v.(bool); !ok {
		return errs.New(errs.InteractionFailed, "cdpdriver: cannot locate option with text: "+text)
	}
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	v, err := e.Call(ctx, textFn)
	if err != nil {
		return "", err
	}
	text, _ := v.(string)
	return text, nil
}

// Call invokes fn with the resolved element. A missing element is an error.
func (e *Element) Call(ctx context.Context, fn string) (any, error) {
	script := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) throw new Error(%s);
		const r = (%s)(el);
		return {v: r === undefined ? null : r};
	})()`, e.expr, jsString("no element for "+e.describe()), fn)
	return e.s.eval(ctx, "evaluate on element", script)
}

func (e *Element) FindAll(ctx context.Context, tag string) ([]interact.Element, error) {
	v, err := e.Call(ctx, fmt.Sprintf(`el => el.querySelectorAll(%s).length`, jsString(tag)))
	if err != nil {
		return nil, err
	}
	n, _ := v.(float64)
	out := make([]interact.Element, 0, int(n))
	for i := 0; i < int(n); i++ {
		out = append(out, &Element{
			s:    e.s,
			expr: fmt.Sprintf("(%s).querySelectorAll(%s)[%d]", e.expr, jsString(tag), i),
		})
	}
	return out, nil
}

// check evaluates fn against the element, passing null when it cannot be resolved.
func (e *Element) check(fn string) string {
	return fmt.Sprintf(`(() => {
		let el = null;
		try { el = %s; } catch (err) { el = null; }
		return {v: (%s)(el)};
	})()`, e.expr, fn)
}

func (e *Element) describe() string {
	if e.sel != "" {
		return e.sel
	}
	return e.expr
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
