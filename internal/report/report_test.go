package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/obs"
)

func TestRecorder_CountsAndCorrelation(t *testing.T) {
	t.Parallel()

	ctx := obs.WithCorrelation(context.Background(), obs.Correlation{RunID: "run-1", Test: "TestLogin", Browser: "chromium"})
	r := NewRecorder()
	r.RecordPass(ctx, "Login [button] clicked successfully on chromium", nil)
	r.RecordFail(ctx, "Banner displayed on chromium", &interact.Evidence{PNG: []byte("png")})
	r.RecordPass(ctx, "page title read", nil)

	require.Equal(t, 2, r.Passed())
	require.Equal(t, 1, r.Failed())

	entries := r.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, "run-1", entries[1].RunID)
	require.Equal(t, "TestLogin", entries[1].Test)
	require.Equal(t, "chromium", entries[1].Browser)
	require.Equal(t, "FAIL", entries[1].Status())
	require.NotEmpty(t, entries[0].ID)
	require.NotEqual(t, entries[0].ID, entries[2].ID)

	entries[0].Message = "mutated"
	require.NotEqual(t, "mutated", r.Entries()[0].Message)
}

func TestRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.RecordPass(context.Background(), "ok", nil)
			} else {
				r.RecordFail(context.Background(), "bad", nil)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 10, r.Passed())
	require.Equal(t, 10, r.Failed())
}

func TestMulti_FansOutAndSkipsNil(t *testing.T) {
	t.Parallel()

	a, b := NewRecorder(), NewRecorder()
	m := Multi(a, nil, b)
	m.RecordPass(context.Background(), "one", nil)
	m.RecordFail(context.Background(), "two", nil)

	for _, r := range []*Recorder{a, b} {
		require.Equal(t, 1, r.Passed())
		require.Equal(t, 1, r.Failed())
	}
}

func TestRenderMarkdown(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{Pass: true, Message: "Save [button] clicked successfully on chromium", Browser: "chromium"},
		{Pass: false, Message: "a | b\nsecond line", Browser: "chromium", Evidence: &interact.Evidence{PNG: []byte("png"), URL: "https://cdn.example.com/x.png"}},
	}
	md := RenderMarkdown("Checkout run", entries)

	require.Contains(t, md, "# Checkout run")
	require.Contains(t, md, "**1 passed, 1 failed**")
	require.Contains(t, md, `Save \[button\] clicked`)
	require.Contains(t, md, `a \| b second line`)
	require.Contains(t, md, "## Evidence for #2 (FAIL)")
	require.Contains(t, md, "[Stored screenshot](https://cdn.example.com/x.png)")
	require.Contains(t, md, "data:image/png;base64,cG5n")

	require.Contains(t, RenderMarkdown("Empty", nil), "No interactions were reported.")
}

func TestRenderHTML_SanitisesPageText(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{Pass: false, Message: `<script>alert(1)</script> found`, Evidence: &interact.Evidence{PNG: []byte("png")}},
	}
	page, err := RenderHTML("Run <1>", entries)
	require.NoError(t, err)

	html := string(page)
	require.NotContains(t, html, "<script>")
	require.Contains(t, html, "<table>")
	require.Contains(t, html, `src="data:image/png;base64,cG5n"`)
	require.Contains(t, html, "<title>Run &lt;1&gt;</title>")
}

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := WriteHTML(dir, "run-a/b", "Run", []Entry{{Pass: true, Message: "ok"}})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "report-run-a_b.html"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "<!doctype html>"))
}
