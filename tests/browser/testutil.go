// Package browser provides shared utilities for Playwright tests that drive the
// interaction helper against a local fixture site.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/pwdriver"
	"github.com/kuitang/webact/internal/report"
)

const (
	// CODING AGENT RULE: Always use these timeout constants for browser tests.
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeout = 5 * time.Second
)

var browserFixtureMu sync.Mutex
var browserSharedFixture *BrowserTestEnv

// BrowserTestEnv is the shared environment for browser tests: one fixture server and,
// once a test asks for it, one Playwright browser.
type BrowserTestEnv struct {
	Server  *httptest.Server
	BaseURL string

	runtime   *pwdriver.Runtime
	browserMu sync.Mutex
}

// SetupBrowserTestEnv returns the shared environment, creating it on first use.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		srv := httptest.NewServer(fixtureMux())
		browserSharedFixture = &BrowserTestEnv{Server: srv, BaseURL: srv.URL}
	}
	return browserSharedFixture
}

func cleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		return
	}
	if browserSharedFixture.runtime != nil {
		_ = browserSharedFixture.runtime.Close()
	}
	browserSharedFixture.Server.Close()
	browserSharedFixture = nil
}

// InitBrowser launches headless Chromium once. Tests are skipped in -short mode or
// when Playwright or its browsers are not installed.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	env.browserMu.Lock()
	defer env.browserMu.Unlock()

	if env.runtime != nil {
		return
	}
	rt, err := pwdriver.Launch(pwdriver.Options{
		Browser:        "chromium",
		Headless:       true,
		DefaultTimeout: browserMaxTimeout,
	})
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	env.runtime = rt
}

// NewSession opens a fresh page and navigates it to path on the fixture server.
func (env *BrowserTestEnv) NewSession(t *testing.T, path string) *pwdriver.Session {
	t.Helper()

	env.InitBrowser(t)
	s, err := env.runtime.NewSession()
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	t.Cleanup(func() { _ = s.Page().Close() })

	ctx, cancel := context.WithTimeout(context.Background(), browserMaxTimeout)
	defer cancel()
	if err := s.Navigate(ctx, env.BaseURL+path); err != nil {
		t.Fatalf("Failed to navigate to %s: %v", path, err)
	}
	return s
}

// RecordingT captures escalated failures so a test can assert on them without failing.
type RecordingT struct {
	mu     sync.Mutex
	Errors []string
}

func (r *RecordingT) Helper() {}

func (r *RecordingT) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// NewHelper wires a Helper with an in-memory recorder and a RecordingT.
func NewHelper(s interact.Session) (*interact.Helper, *report.Recorder, *RecordingT) {
	rec := report.NewRecorder()
	rt := &RecordingT{}
	h := interact.New(s, rec,
		interact.WithTimeout(browserMaxTimeout),
		interact.WithSettleDelay(0),
		interact.WithTestContext(rt),
	)
	return h, rec, rt
}

// fixturePage exercises every helper operation. The #later element appears and the
// #spinner element disappears shortly after load.
const fixturePage = `<!doctype html>
<html>
<head><title>Orders</title></head>
<body>
<h1 id="title">Orders overview</h1>
<button id="go" onclick="document.getElementById('status').textContent = 'Clicked'">Go</button>
<button id="off" disabled>Off</button>
<p id="status">Idle</p>
<p id="empty"></p>
<input id="name" value="prefilled">
<select id="size"><option>Small</option><option>Large</option></select>
<div id="later" style="display:none">Ready</div>
<div id="spinner">Loading</div>
<div id="sticky">Always here</div>
<a id="secret" href="#" style="display:none" onclick="document.getElementById('status').textContent = 'Scripted'; return false;">secret</a>
<div style="height:3000px"></div>
<table id="orders">
<tr><th>Id</th><th>Item</th></tr>
<tr><td>1</td><td>Widget</td></tr>
<tr><td></td><td>Gadget</td></tr>
</table>
<script>
setTimeout(() => { document.getElementById('later').style.display = 'block'; }, 300);
setTimeout(() => { document.getElementById('spinner').remove(); }, 300);
</script>
</body>
</html>
`

func fixtureMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fixturePage))
	})
	return mux
}
