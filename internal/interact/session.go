// Package interact wraps browser interactions in a uniform wait, act, record shape.
//
// A Helper composes a Session (the page under test), a Reporter (pass/fail records with
// optional screenshot evidence) and the process-wide structured logger from internal/obs.
// Every public operation produces exactly one Outcome, which is logged once, reported once,
// and returned to the caller. Failures are additionally escalated to the TestContext found
// in the call's context (see WithTest) or configured on the Helper.
package interact

import (
	"context"
	"encoding/base64"
	"time"
)

// Condition is a page state an element can be polled for.
type Condition int

const (
	// Visible means attached to the DOM and rendered.
	Visible Condition = iota
	// Clickable means visible and enabled.
	Clickable
	// Hidden means detached or not rendered.
	Hidden
)

func (c Condition) String() string {
	switch c {
	case Visible:
		return "visible"
	case Clickable:
		return "clickable"
	case Hidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// Element is a handle to a located page node. Implementations live in the driver
// packages; the Helper never keeps one beyond a single call.
type Element interface {
	// WaitFor blocks until the element satisfies cond or timeout elapses. A timeout
	// must be reported as an errs.ConditionTimeout error.
	WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	// SelectByText selects the option of a <select> whose visible text equals text.
	SelectByText(ctx context.Context, text string) error
	// Text returns the rendered text of the element.
	Text(ctx context.Context) (string, error)
	// Call runs a JavaScript function of the form "el => ..." with the element bound.
	Call(ctx context.Context, fn string) (any, error)
	// FindAll returns the descendants with the given tag name, in document order.
	FindAll(ctx context.Context, tag string) ([]Element, error)
}

// Session is a live browser page.
type Session interface {
	// Label is the human-readable browser name used in messages.
	Label() string
	// Eval evaluates a JavaScript expression in the page.
	Eval(ctx context.Context, expression string) (any, error)
	// Screenshot returns a full-page PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Evidence is a screenshot attached to a report entry.
type Evidence struct {
	PNG []byte
	// URL is set when the evidence has been uploaded somewhere addressable.
	URL string
}

// Base64 returns the PNG as standard base64.
func (e *Evidence) Base64() string {
	if e == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(e.PNG)
}

// Reporter records pass/fail entries for a test report.
type Reporter interface {
	RecordPass(ctx context.Context, message string, evidence *Evidence)
	RecordFail(ctx context.Context, message string, evidence *Evidence)
}

type discardReporter struct{}

func (discardReporter) RecordPass(context.Context, string, *Evidence) {}
func (discardReporter) RecordFail(context.Context, string, *Evidence) {}
