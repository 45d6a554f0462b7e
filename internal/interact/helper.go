package interact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuitang/webact/internal/errs"
	"github.com/kuitang/webact/internal/obs"
)

const (
	// DefaultTimeout bounds every condition poll unless overridden.
	DefaultTimeout = 30 * time.Second
	// DefaultSettleDelay is the pause between clearing a field and typing into it.
	DefaultSettleDelay = time.Second
	// DefaultPagePollInterval paces document.readyState checks.
	DefaultPagePollInterval = 100 * time.Millisecond

	evidenceTimeout = 10 * time.Second
)

// Helper performs interactions against one Session. It is not safe for concurrent use:
// the underlying browser session is not reentrant.
type Helper struct {
	session  Session
	reporter Reporter
	test     TestContext

	timeout      time.Duration
	settleDelay  time.Duration
	pollInterval time.Duration
}

// Option configures a Helper.
type Option func(*Helper)

// WithTimeout sets the default bounded-wait timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Helper) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithSettleDelay sets the pause ClearAndType takes between clearing and typing.
func WithSettleDelay(d time.Duration) Option {
	return func(h *Helper) {
		if d >= 0 {
			h.settleDelay = d
		}
	}
}

// WithPagePollInterval sets how often WaitForPageLoad checks readiness.
func WithPagePollInterval(d time.Duration) Option {
	return func(h *Helper) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// WithTestContext sets the test context used when the call context carries none.
func WithTestContext(t TestContext) Option {
	return func(h *Helper) {
		h.test = t
	}
}

// New creates a Helper. A nil reporter discards report entries.
func New(session Session, reporter Reporter, opts ...Option) *Helper {
	if reporter == nil {
		reporter = discardReporter{}
	}
	h := &Helper{
		session:      session,
		reporter:     reporter,
		timeout:      DefaultTimeout,
		settleDelay:  DefaultSettleDelay,
		pollInterval: DefaultPagePollInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SessionLabel returns the label of the wrapped session.
func (h *Helper) SessionLabel() string {
	if h.session == nil {
		return "unknown browser"
	}
	return h.session.Label()
}

// step describes one interaction for run.
type step struct {
	op   Op
	name string

	// wait polls el for cond before act runs.
	wait    bool
	el      Element
	cond    Condition
	timeout time.Duration

	act func(ctx context.Context) error

	passMsg func() string
	failMsg func(err error) string

	// passLevel picks the log level of a successful outcome; nil means Info.
	passLevel func() slog.Level
	// noEscalate keeps failures out of the test context.
	noEscalate bool
	// noEvidence skips the failure screenshot.
	noEvidence bool
	// passEvidence is attached to the pass entry.
	passEvidence func() *Evidence
}

// run is the one shape every operation shares: bounded wait, act, record.
func (h *Helper) run(ctx context.Context, s step) Outcome {
	if err := h.perform(ctx, s); err != nil {
		return h.fail(ctx, s, err)
	}
	var ev *Evidence
	if s.passEvidence != nil {
		ev = s.passEvidence()
	}
	return h.pass(ctx, s, ev)
}

func (h *Helper) perform(ctx context.Context, s step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Unexpected, fmt.Sprintf("%s %s: driver panic: %v", s.op, s.name, r))
		}
	}()

	if h.session == nil {
		return errs.New(errs.Unavailable, "no browser session")
	}
	timeout := s.timeout
	if timeout <= 0 {
		timeout = h.timeout
	}

	if s.wait {
		if s.el == nil {
			return errs.New(errs.InvalidArgument, fmt.Sprintf("%s %s: nil element", s.op, s.name))
		}
		if werr := s.el.WaitFor(ctx, s.cond, timeout); werr != nil {
			return waitError(s, timeout, werr)
		}
	}
	if s.act == nil {
		return nil
	}

	actCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if aerr := s.act(actCtx); aerr != nil {
		var coded *errs.Error
		if errors.As(aerr, &coded) {
			return aerr
		}
		if errs.CodeOf(aerr) == errs.ConditionTimeout {
			return errs.Timeout(fmt.Sprintf("%s %s timed out", s.op, s.name), aerr)
		}
		return errs.Wrap(errs.InteractionFailed, fmt.Sprintf("%s %s", s.op, s.name), aerr)
	}
	return nil
}

func waitError(s step, timeout time.Duration, err error) error {
	if s.cond == Hidden && errs.CodeOf(err) == errs.ConditionTimeout {
		return &errs.Error{
			Code:    errs.UnexpectedlyVisible,
			Message: fmt.Sprintf("%s still displayed after %s", s.name, timeout),
			Err:     err,
		}
	}
	if errs.CodeOf(err) == errs.ConditionTimeout {
		return errs.Timeout(fmt.Sprintf("%s not %s after %s", s.name, s.cond, timeout), err)
	}
	var coded *errs.Error
	if errors.As(err, &coded) {
		return err
	}
	return errs.Wrap(errs.InteractionFailed, fmt.Sprintf("waiting for %s to be %s", s.name, s.cond), err)
}

func (h *Helper) pass(ctx context.Context, s step, ev *Evidence) Outcome {
	msg := s.passMsg()
	o := Outcome{
		OK:       true,
		Op:       s.op,
		Name:     s.name,
		Message:  msg,
		Evidence: ev,
	}
	level := slog.LevelInfo
	if s.passLevel != nil {
		level = s.passLevel()
	}
	h.logger(ctx).Log(ctx, level, msg, h.attrs(o)...)
	h.reporter.RecordPass(ctx, msg, ev)
	return o
}

func (h *Helper) fail(ctx context.Context, s step, err error) Outcome {
	msg := s.failMsg(err)
	o := Outcome{
		Op:      s.op,
		Name:    s.name,
		Message: msg,
		Err:     err,
	}

	attrs := []any{}
	if !s.noEvidence {
		ev, capErr := h.capture(ctx)
		if capErr != nil {
			attrs = append(attrs, "evidence_error", capErr.Error())
		}
		o.Evidence = ev
	}

	attrs = append(h.attrs(o), attrs...)
	h.logger(ctx).Error(msg, attrs...)
	h.reporter.RecordFail(ctx, msg, o.Evidence)

	if !s.noEscalate {
		o.Escalated = h.escalate(ctx, o)
	}
	return o
}

// capture takes a full-page screenshot for a failure. It runs on a context detached
// from ctx's cancellation so an expired wait still yields evidence.
func (h *Helper) capture(ctx context.Context) (ev *Evidence, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = nil, fmt.Errorf("screenshot panic: %v", r)
		}
	}()
	if h.session == nil {
		return nil, errs.New(errs.Unavailable, "no browser session")
	}
	capCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), evidenceTimeout)
	defer cancel()
	png, err := h.session.Screenshot(capCtx)
	if err != nil {
		return nil, err
	}
	return &Evidence{PNG: png}, nil
}

func (h *Helper) escalate(ctx context.Context, o Outcome) bool {
	t := TestFrom(ctx)
	if t == nil {
		t = h.test
	}
	if t == nil {
		return false
	}
	t.Helper()
	t.Errorf("%s", o.Message)
	return true
}

func (h *Helper) logger(ctx context.Context) *slog.Logger {
	return obs.From(ctx).With("pkg", "interact")
}

func (h *Helper) attrs(o Outcome) []any {
	attrs := []any{
		"op", string(o.Op),
		"session", h.SessionLabel(),
		"ok", o.OK,
	}
	if o.Name != "" {
		attrs = append(attrs, "element", o.Name)
	}
	if !o.OK {
		attrs = append(attrs, "code", string(errs.CodeOf(o.Err)))
	}
	if o.Evidence != nil {
		attrs = append(attrs, "evidence_bytes", len(o.Evidence.PNG))
	}
	return attrs
}
