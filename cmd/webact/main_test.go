package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/webact/internal/config"
	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/ledger"
	"github.com/kuitang/webact/internal/notify"
	"github.com/kuitang/webact/internal/obs"
	"github.com/kuitang/webact/internal/report"
)

func TestRun_ConfigErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-text", "h1"}, &stdout, &stderr)
	require.Equal(t, exitConfig, code)
	require.Contains(t, stderr.String(), "-url is required")

	stderr.Reset()
	code = run(context.Background(), []string{"-nope"}, &stdout, &stderr)
	require.Equal(t, exitConfig, code)
	require.Contains(t, stderr.String(), "flag provided but not defined")
}

func TestNewNotifier(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	require.Nil(t, newNotifier(cfg))

	cfg.NotifyTo = []string{"qa@example.com"}
	cfg.NoEmail = true
	cfg.MockOutboxDir = filepath.Join(t.TempDir(), "outbox")
	_, ok := newNotifier(cfg).(*notify.MockNotifier)
	require.True(t, ok)
	require.DirExists(t, cfg.MockOutboxDir)

	cfg.NoEmail = false
	cfg.ResendAPIKey = "re_test"
	_, ok = newNotifier(cfg).(*notify.ResendNotifier)
	require.True(t, ok)
}

func TestBuildReporter_LedgerReceivesEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	cfg := &config.Config{LedgerPath: path, Flags: config.Flags{NoS3: true}}
	ctx := obs.WithCorrelation(context.Background(), obs.Correlation{RunID: "run-cli"})

	rec := report.NewRecorder()
	reporter, cleanup, err := buildReporter(ctx, cfg, rec)
	require.NoError(t, err)
	reporter.RecordFail(ctx, "Save not clickable after 30s", &interact.Evidence{PNG: []byte("png")})
	cleanup()

	require.Equal(t, 1, rec.Failed())
	l, err := ledger.Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer l.Close()
	got, err := l.ListRun(context.Background(), "run-cli")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.False(t, got[0].Pass)
}

func TestBuildReporter_RejectsBadLedgerKey(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{LedgerPath: filepath.Join(t.TempDir(), "l.db"), LedgerKey: "not-hex"}
	_, _, err := buildReporter(context.Background(), cfg, report.NewRecorder())
	require.Error(t, err)
}

func TestRunT_PrintsEscalations(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	rt := &runT{out: &out}
	var tc interact.TestContext = rt
	tc.Helper()
	tc.Errorf("%s not displayed on %s\n", "Banner", "chromium")
	require.Equal(t, 1, rt.failed)
	require.Equal(t, "FAIL: Banner not displayed on chromium\n", out.String())
}
