package cdpdriver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/webact/internal/interact"
)

func TestJSString_Escapes(t *testing.T) {
	t.Parallel()

	require.Equal(t, `"plain"`, jsString("plain"))
	require.Equal(t, `"say \"hi\""`, jsString(`say "hi"`))
	require.Equal(t, `"a\nb"`, jsString("a\nb"))
}

func TestLocate_BuildsQueryExpression(t *testing.T) {
	t.Parallel()

	s := &Session{}
	el := s.Locate(`button[name="go"]`)
	require.Equal(t, `button[name="go"]`, el.sel)
	require.Equal(t, `document.querySelector("button[name=\"go\"]")`, el.expr)
	require.Equal(t, el.sel, el.describe())
}

func TestCheck_ToleratesMissingParent(t *testing.T) {
	t.Parallel()

	el := &Element{expr: `(document.querySelector("#t")).querySelectorAll("tr")[2]`}
	script := el.check(visibleFn)
	require.Contains(t, script, "try { el = "+el.expr)
	require.Contains(t, script, "catch (err) { el = null; }")
	require.Equal(t, el.expr, el.describe())
}

const fixture = `<!doctype html>
<html><body>
<input id="name" value="old">
<select id="menu"><option value="1">One</option><option value="2">Two</option></select>
<table id="grid"><tr><td>a</td><td>b</td></tr><tr><td>c</td></tr></table>
<div id="gone" style="display:none">hidden</div>
</body></html>`

// Exercises the backend against a real Chrome. Skipped when Chrome is not installed.
func TestSession_AgainstChrome(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	s, err := Start(context.Background(), Options{Headless: true})
	if err != nil {
		t.Skipf("chrome not available: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, s.Navigate(ctx, srv.URL))

	state, err := s.Eval(ctx, "document.readyState")
	require.NoError(t, err)
	require.Equal(t, "complete", state)

	name := s.Locate("#name")
	require.NoError(t, name.WaitFor(ctx, interact.Clickable, 5*time.Second))
	require.NoError(t, name.Clear(ctx))
	require.NoError(t, name.SendKeys(ctx, "new"))
	value, err := name.Call(ctx, "el => el.value")
	require.NoError(t, err)
	require.Equal(t, "new", value)

	menu := s.Locate("#menu")
	require.NoError(t, menu.SelectByText(ctx, "Two"))
	value, err = menu.Call(ctx, "el => el.value")
	require.NoError(t, err)
	require.Equal(t, "2", value)
	require.Error(t, menu.SelectByText(ctx, "Three"))

	rows, err := s.Locate("#grid").FindAll(ctx, "tr")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	cells, err := rows[0].FindAll(ctx, "td")
	require.NoError(t, err)
	require.Len(t, cells, 2)
	text, err := cells[1].Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", strings.TrimSpace(text))

	require.NoError(t, s.Locate("#gone").WaitFor(ctx, interact.Hidden, time.Second))
	require.NoError(t, s.Locate("#missing").WaitFor(ctx, interact.Hidden, time.Second))
	require.Error(t, s.Locate("#gone").WaitFor(ctx, interact.Visible, 300*time.Millisecond))

	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	require.True(t, len(png) > 8 && string(png[1:4]) == "PNG")
}
