// Command webact opens a page in a real browser, runs a few checked interactions on it
// and writes a run report.
//
//	webact -url https://example.com -text h1 -expect "Example Domain"
//
// The exit code is 0 when every interaction passed, 1 when any failed and 2 on bad
// configuration.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kuitang/webact/internal/cdpdriver"
	"github.com/kuitang/webact/internal/config"
	"github.com/kuitang/webact/internal/evidence"
	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/ledger"
	"github.com/kuitang/webact/internal/notify"
	"github.com/kuitang/webact/internal/obs"
	"github.com/kuitang/webact/internal/pwdriver"
	"github.com/kuitang/webact/internal/report"
	"github.com/kuitang/webact/internal/seldriver"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	obs.Init()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, err := config.ParseFlags(args, stderr)
	if err != nil {
		return exitConfig
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	if cfg.Inspecting() {
		return inspect(ctx, cfg, stdout, stderr)
	}
	cfg.PrintStartupSummary(stderr)

	runID := obs.NewRunID()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: runID, Test: cfg.Title, Browser: cfg.Browser})
	logger := obs.From(ctx).With("pkg", "main")

	p, err := openPage(ctx, cfg)
	if err != nil {
		logger.Error("could not open browser", "driver", cfg.Driver, "error", err)
		return exitFailed
	}
	defer func() {
		if err := p.close(); err != nil {
			logger.Warn("browser close failed", "error", err)
		}
	}()

	rec := report.NewRecorder()
	reporter, cleanup, err := buildReporter(ctx, cfg, rec)
	if err != nil {
		logger.Error("could not set up reporting", "error", err)
		return exitFailed
	}
	defer cleanup()

	t := &runT{out: stderr}
	h := interact.New(p.Session, reporter,
		interact.WithTimeout(cfg.Timeout),
		interact.WithSettleDelay(cfg.SettleDelay),
		interact.WithTestContext(t),
	)

	if err := p.navigate(ctx, cfg.URL); err != nil {
		logger.Error("navigation failed", "url", cfg.URL, "error", err)
		return exitFailed
	}
	h.WaitForPageLoad(ctx, cfg.PageLoadTimeout)
	interactions(ctx, cfg, h, p, stdout)
	h.CaptureScreenshot(ctx, "final page")

	entries := rec.Entries()
	path, err := report.WriteHTML(cfg.ReportDir, runID, cfg.Title, entries)
	if err != nil {
		logger.Error("could not write report", "error", err)
	} else {
		fmt.Fprintf(stdout, "report: %s\n", path)
	}
	fmt.Fprintf(stdout, "%d passed, %d failed\n", rec.Passed(), rec.Failed())

	if rec.Failed() == 0 {
		return exitOK
	}
	if n := newNotifier(cfg); n != nil {
		if err := n.NotifyFailure(ctx, notify.NewSummary(runID, cfg.Title, path, entries)); err != nil {
			logger.Error("failure notification not sent", "error", err)
		}
	}
	return exitFailed
}

// interactions runs the steps requested on the command line in a fixed order:
// click, read text and compare, read table.
func interactions(ctx context.Context, cfg *config.Config, h *interact.Helper, p *page, stdout io.Writer) {
	if cfg.Click != "" {
		h.Click(ctx, p.locate(cfg.Click), cfg.Click)
	}
	if cfg.Text != "" {
		el := p.locate(cfg.Text)
		if text, o := h.ReadText(ctx, el, cfg.Text); o.OK {
			fmt.Fprintf(stdout, "text %s: %s\n", cfg.Text, text)
		}
		if cfg.Expect != "" {
			h.AssertContains(ctx, el, cfg.Text, cfg.Expect)
		}
	}
	if cfg.Table != "" {
		cells, _ := h.ReadTableText(ctx, p.locate(cfg.Table), cfg.Table)
		for _, cell := range cells {
			fmt.Fprintf(stdout, "cell %s: %s\n", cfg.Table, cell)
		}
	}
}

// page is a browser tab from any driver.
type page struct {
	interact.Session
	navigate func(ctx context.Context, url string) error
	locate   func(selector string) interact.Element
	close    func() error
}

func openPage(ctx context.Context, cfg *config.Config) (*page, error) {
	switch cfg.Driver {
	case config.DriverPlaywright:
		rt, err := pwdriver.Launch(pwdriver.Options{
			Browser:        cfg.Browser,
			Headless:       cfg.Headless,
			DefaultTimeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		s, err := rt.NewSession()
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		return &page{
			Session:  s,
			navigate: s.Navigate,
			locate:   func(sel string) interact.Element { return s.Locate(sel) },
			close:    rt.Close,
		}, nil

	case config.DriverChromedp:
		s, err := cdpdriver.Start(ctx, cdpdriver.Options{Headless: cfg.Headless})
		if err != nil {
			return nil, err
		}
		return &page{
			Session:  s,
			navigate: s.Navigate,
			locate:   func(sel string) interact.Element { return s.Locate(sel) },
			close:    func() error { s.Close(); return nil },
		}, nil

	case config.DriverSelenium:
		s, err := seldriver.Dial(seldriver.Options{URL: cfg.SeleniumURL, Browser: cfg.Browser, Headless: cfg.Headless})
		if err != nil {
			return nil, err
		}
		return &page{
			Session:  s,
			navigate: s.Navigate,
			locate:   func(sel string) interact.Element { return s.Locate(sel) },
			close:    s.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}

// buildReporter fans entries out to the recorder and, when configured, the ledger.
// Evidence is uploaded first so that every sink sees the stored URL.
func buildReporter(ctx context.Context, cfg *config.Config, rec *report.Recorder) (interact.Reporter, func(), error) {
	cleanup := func() {}
	sinks := []interact.Reporter{rec}

	if cfg.LedgerEnabled() {
		l, err := openLedger(ctx, cfg)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = l.Close() }
		sinks = append(sinks, ledger.NewReporter(l))
	}

	reporter := report.Multi(sinks...)
	if cfg.EvidenceEnabled() {
		store, err := openEvidence(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		reporter = evidence.NewReporter(reporter, store)
	}
	return reporter, cleanup, nil
}

func openLedger(ctx context.Context, cfg *config.Config) (*ledger.Ledger, error) {
	key, err := ledger.ParseKey(cfg.LedgerKey)
	if err != nil {
		return nil, err
	}
	return ledger.Open(ctx, cfg.LedgerPath, key)
}

func openEvidence(ctx context.Context, cfg *config.Config) (*evidence.Store, error) {
	return evidence.New(ctx, evidence.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.AWSBucketName,
		PublicURL:       cfg.AWSPublicURL,
	})
}

func newNotifier(cfg *config.Config) notify.Notifier {
	switch {
	case !cfg.NotifyEnabled():
		return nil
	case cfg.NoEmail:
		return notify.NewMockNotifier(cfg.NotifyTo, cfg.MockOutboxDir)
	default:
		return notify.NewResendNotifier(cfg.ResendAPIKey, cfg.ResendFromEmail, cfg.NotifyTo)
	}
}

// runT receives escalated failures for a command-line run and prints them.
type runT struct {
	out    io.Writer
	failed int
}

func (t *runT) Helper() {}

func (t *runT) Errorf(format string, args ...any) {
	t.failed++
	fmt.Fprintf(t.out, "FAIL: %s\n", strings.TrimSpace(fmt.Sprintf(format, args...)))
}
