package main

import (
	"bytes"
	"context"
	"crypto/sha3"
	"fmt"
	"io"
	"time"

	"github.com/kuitang/webact/internal/config"
	"github.com/kuitang/webact/internal/evidence"
	"github.com/kuitang/webact/internal/ledger"
	"github.com/kuitang/webact/internal/obs"
)

// inspect serves -history and -show: it reads the ledger and never opens a browser.
func inspect(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) int {
	l, err := openLedger(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailed
	}
	defer l.Close()

	if cfg.History {
		if err := printHistory(ctx, l, stdout); err != nil {
			fmt.Fprintln(stderr, err)
			return exitFailed
		}
		if cfg.Show == "" {
			return exitOK
		}
	}

	var store *evidence.Store
	if cfg.EvidenceEnabled() {
		if store, err = openEvidence(ctx, cfg); err != nil {
			fmt.Fprintln(stderr, err)
			return exitFailed
		}
	}
	return showRun(ctx, l, store, cfg.Show, stdout, stderr)
}

func printHistory(ctx context.Context, l *ledger.Ledger, w io.Writer) error {
	runs, err := l.Summaries(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %d passed, %d failed  (%s)\n",
			r.RunID, r.Started.Format(time.RFC3339), r.Passed, r.Failed,
			r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	return nil
}

// showRun prints the entries of runID. With a store, every stored screenshot is
// downloaded and checked against the digest the ledger kept for it. The result is
// exitFailed when the run had failures, is unknown, or any evidence does not verify.
func showRun(ctx context.Context, l *ledger.Ledger, store *evidence.Store, runID string, stdout, stderr io.Writer) int {
	entries, err := l.ListRun(ctx, runID)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailed
	}
	if len(entries) == 0 {
		fmt.Fprintf(stderr, "no entries for run %s\n", runID)
		return exitFailed
	}

	code := exitOK
	for _, e := range entries {
		fmt.Fprintf(stdout, "%s  %s  %s\n", e.Time.Format(time.RFC3339), e.Status(), e.Message)
		if !e.Pass {
			code = exitFailed
		}
		if e.Evidence == nil || e.Evidence.URL == "" {
			continue
		}
		fmt.Fprintf(stdout, "    evidence: %s\n", e.Evidence.URL)
		if store == nil {
			continue
		}
		if err := verifyEvidence(ctx, l, store, e.ID, e.Evidence.URL); err != nil {
			fmt.Fprintf(stdout, "    evidence not verified: %v\n", err)
			code = exitFailed
			continue
		}
		fmt.Fprintln(stdout, "    evidence verified")
	}

	if store != nil {
		keys, err := store.List(ctx, runID)
		if err != nil {
			obs.From(ctx).Warn("could not list stored evidence", "pkg", "main", "run_id", runID, "error", err)
		} else {
			fmt.Fprintf(stdout, "%d screenshots stored in %s\n", len(keys), store.BucketName())
		}
	}
	return code
}

func verifyEvidence(ctx context.Context, l *ledger.Ledger, store *evidence.Store, id, url string) error {
	key, ok := store.KeyFromURL(url)
	if !ok {
		return fmt.Errorf("%s is not in bucket %s", url, store.BucketName())
	}
	want, err := l.EvidenceDigest(ctx, id)
	if err != nil {
		return err
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	got := sha3.Sum256(data)
	if !bytes.Equal(got[:], want) {
		return fmt.Errorf("digest mismatch for %s", key)
	}
	return nil
}
