package seldriver

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"

	"github.com/kuitang/webact/internal/errs"
	"github.com/kuitang/webact/internal/interact"
)

// fakeDriver implements the handful of WebDriver methods the adapter calls. Anything
// else panics through the nil embedded interface.
type fakeDriver struct {
	selenium.WebDriver
	elements map[string]*fakeElement
	scripts  []string
	args     [][]any
	result   any
}

func (d *fakeDriver) FindElement(by, value string) (selenium.WebElement, error) {
	if by != selenium.ByCSSSelector {
		return nil, errors.New("unexpected locator " + by)
	}
	if el, ok := d.elements[value]; ok {
		return el, nil
	}
	return nil, &selenium.Error{Err: "no such element", Message: value}
}

func (d *fakeDriver) ExecuteScript(script string, args []any) (any, error) {
	d.scripts = append(d.scripts, script)
	d.args = append(d.args, args)
	return d.result, nil
}

func (d *fakeDriver) Screenshot() ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (d *fakeDriver) WaitWithTimeoutAndInterval(cond selenium.Condition, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond(d)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("timeout after " + timeout.String())
		}
		time.Sleep(interval)
	}
}

type fakeElement struct {
	selenium.WebElement
	displayed bool
	enabled   bool
	text      string
	clicks    int
	keys      string
	options   map[string]*fakeElement
	children  []selenium.WebElement
}

func (e *fakeElement) IsDisplayed() (bool, error) { return e.displayed, nil }
func (e *fakeElement) IsEnabled() (bool, error)   { return e.enabled, nil }
func (e *fakeElement) Text() (string, error)      { return e.text, nil }
func (e *fakeElement) Clear() error               { e.keys = ""; return nil }
func (e *fakeElement) SendKeys(keys string) error { e.keys += keys; return nil }

func (e *fakeElement) Click() error {
	e.clicks++
	return nil
}

func (e *fakeElement) FindElement(by, value string) (selenium.WebElement, error) {
	for xpath, opt := range e.options {
		if by == selenium.ByXPATH && value == xpath {
			return opt, nil
		}
	}
	return nil, &selenium.Error{Err: "no such element", Message: value}
}

func (e *fakeElement) FindElements(by, value string) ([]selenium.WebElement, error) {
	return e.children, nil
}

func newSession(elements map[string]*fakeElement) (*Session, *fakeDriver) {
	d := &fakeDriver{elements: elements}
	return NewSession(d, "chrome"), d
}

func TestElement_WaitFor(t *testing.T) {
	t.Parallel()

	s, _ := newSession(map[string]*fakeElement{
		"#shown":    {displayed: true, enabled: true},
		"#disabled": {displayed: true},
		"#hidden":   {},
	})
	ctx := context.Background()

	require.NoError(t, s.Locate("#shown").WaitFor(ctx, interact.Visible, time.Second))
	require.NoError(t, s.Locate("#shown").WaitFor(ctx, interact.Clickable, time.Second))
	require.NoError(t, s.Locate("#hidden").WaitFor(ctx, interact.Hidden, time.Second))
	require.NoError(t, s.Locate("#absent").WaitFor(ctx, interact.Hidden, time.Second))

	err := s.Locate("#disabled").WaitFor(ctx, interact.Clickable, 150*time.Millisecond)
	require.Equal(t, errs.ConditionTimeout, errs.CodeOf(err))

	err = s.Locate("#absent").WaitFor(ctx, interact.Visible, 150*time.Millisecond)
	require.Equal(t, errs.ConditionTimeout, errs.CodeOf(err))
}

func TestElement_Actions(t *testing.T) {
	t.Parallel()

	two := &fakeElement{}
	field := &fakeElement{displayed: true, enabled: true, text: "label"}
	menu := &fakeElement{options: map[string]*fakeElement{`.//option[normalize-space(.)="Two"]`: two}}
	s, d := newSession(map[string]*fakeElement{"#field": field, "#menu": menu})
	ctx := context.Background()

	el := s.Locate("#field")
	require.NoError(t, el.SendKeys(ctx, "abc"))
	require.NoError(t, el.Clear(ctx))
	require.NoError(t, el.SendKeys(ctx, "xyz"))
	require.Equal(t, "xyz", field.keys)
	require.NoError(t, el.Click(ctx))
	require.Equal(t, 1, field.clicks)

	text, err := el.Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "label", text)

	require.NoError(t, s.Locate("#menu").SelectByText(ctx, "Two"))
	require.Equal(t, 1, two.clicks)
	err = s.Locate("#menu").SelectByText(ctx, "Three")
	require.Equal(t, errs.InteractionFailed, errs.CodeOf(err))

	d.result = "ok"
	v, err := el.Call(ctx, "el => el.click()")
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, "return (el => el.click())(arguments[0]);", d.scripts[len(d.scripts)-1])
	require.Equal(t, []any{field}, d.args[len(d.args)-1])

	err = s.Locate("#absent").Click(ctx)
	require.Equal(t, errs.InteractionFailed, errs.CodeOf(err))
}

func TestElement_FindAll(t *testing.T) {
	t.Parallel()

	a, b := &fakeElement{text: "a"}, &fakeElement{text: "b"}
	s, _ := newSession(map[string]*fakeElement{"#grid": {children: []selenium.WebElement{a, b}}})

	rows, err := s.Locate("#grid").FindAll(context.Background(), "tr")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	text, err := rows[1].Text(context.Background())
	require.NoError(t, err)
	require.Equal(t, "b", text)
}

func TestSession_EvalWrapsExpression(t *testing.T) {
	t.Parallel()

	s, d := newSession(nil)
	d.result = "complete"
	v, err := s.Eval(context.Background(), "document.readyState")
	require.NoError(t, err)
	require.Equal(t, "complete", v)
	require.Equal(t, "return (document.readyState);", d.scripts[0])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Eval(ctx, "1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSession_ScreenshotFullPageOnFirefox(t *testing.T) {
	t.Parallel()
	full := []byte("\x89PNG full page")
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wd/hub/session/abc/moz/screenshot/full", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"` + base64.StdEncoding.EncodeToString(full) + `"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := NewSession(&fakeDriver{}, "firefox")
	s.fullPage = fullPageEndpoint(srv.URL+"/wd/hub/", "abc")

	png, err := s.Screenshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, full, png)
}

func TestSession_ScreenshotFallsBackToViewport(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	s := NewSession(&fakeDriver{}, "firefox")
	s.fullPage = fullPageEndpoint(srv.URL, "abc")
	png, err := s.Screenshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("\x89PNG"), png)

	chrome := NewSession(&fakeDriver{}, "chrome")
	require.Empty(t, chrome.fullPage)
	png, err = chrome.Screenshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("\x89PNG"), png)
}

func TestXPathLiteral(t *testing.T) {
	t.Parallel()

	require.Equal(t, `"plain"`, xpathLiteral("plain"))
	require.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	require.Equal(t, `concat("it's ", '"', "quoted", '"', "")`, xpathLiteral(`it's "quoted"`))
}

func TestMapError(t *testing.T) {
	t.Parallel()

	require.NoError(t, mapError("click", nil))
	require.Equal(t, errs.ConditionTimeout, errs.CodeOf(mapError("click", &selenium.Error{Err: "timeout"})))
	require.Equal(t, errs.InteractionFailed, errs.CodeOf(mapError("click", &selenium.Error{Err: "stale element reference"})))
	coded := errs.New(errs.InvalidArgument, "bad")
	require.Same(t, coded, mapError("click", coded))
}
