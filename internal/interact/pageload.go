package interact

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/webact/internal/errs"
)

const readyStateExpression = "document.readyState"

// WaitForPageLoad polls document.readyState until it reports "complete" or timeout
// elapses. It never fails the caller: errors are logged, nothing is reported or
// escalated, and exactly one info line is written when the wait ends. The returned
// Outcome is OK only when the page reached "complete".
func (h *Helper) WaitForPageLoad(ctx context.Context, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = h.timeout
	}
	log := h.logger(ctx)
	start := time.Now()

	err := h.pollReadyState(ctx, timeout)
	if err != nil {
		log.Error("page load wait failed", "op", string(OpPageLoad), "session", h.SessionLabel(), "error", err.Error())
	}

	o := Outcome{
		OK:  err == nil,
		Op:  OpPageLoad,
		Err: err,
	}
	if o.OK {
		o.Message = fmt.Sprintf("page has fully loaded on %s", h.SessionLabel())
	} else {
		o.Message = fmt.Sprintf("page load wait ended without completion on %s", h.SessionLabel())
	}
	log.Info(o.Message, "op", string(OpPageLoad), "session", h.SessionLabel(), "ready", o.OK,
		"elapsed_ms", time.Since(start).Milliseconds())
	return o
}

func (h *Helper) pollReadyState(ctx context.Context, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Unexpected, fmt.Sprintf("driver panic: %v", r))
		}
	}()
	if h.session == nil {
		return errs.New(errs.Unavailable, "no browser session")
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(h.pollInterval), 1)
	last := ""
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			return errs.Timeout(fmt.Sprintf("document.readyState %q after %s", last, timeout), err)
		}
		state, err := h.session.Eval(waitCtx, readyStateExpression)
		if err != nil {
			if waitCtx.Err() != nil {
				return errs.Timeout(fmt.Sprintf("document.readyState %q after %s", last, timeout), err)
			}
			return errs.Wrap(errs.InteractionFailed, "evaluating document.readyState", err)
		}
		last, _ = state.(string)
		if last == "complete" {
			return nil
		}
	}
}
