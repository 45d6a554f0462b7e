package interact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kuitang/webact/internal/errs"
	"github.com/kuitang/webact/internal/logutil"
)

const (
	scrollIntoViewScript = "el => el.scrollIntoView({behavior: 'smooth', block: 'center'})"
	clickScript          = "el => el.click()"

	maxLoggedText = 200
)

// Click waits for el to be clickable and clicks it.
func (h *Helper) Click(ctx context.Context, el Element, name string) Outcome {
	return h.run(ctx, step{
		op:   OpClick,
		name: name,
		wait: true,
		el:   el,
		cond: Clickable,
		act: func(ctx context.Context) error {
			return el.Click(ctx)
		},
		passMsg: func() string {
			return fmt.Sprintf("%s [button] clicked successfully on %s", name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("failed to click %s [button] on %s: %v", name, h.SessionLabel(), err)
		},
	})
}

// Type waits for el to be visible and sends text to it.
func (h *Helper) Type(ctx context.Context, el Element, name, text string) Outcome {
	shown := logutil.RedactValue(name, text)
	return h.run(ctx, step{
		op:   OpType,
		name: name,
		wait: true,
		el:   el,
		cond: Visible,
		act: func(ctx context.Context) error {
			return el.SendKeys(ctx, text)
		},
		passMsg: func() string {
			return fmt.Sprintf("%q sent to %s successfully on %s", shown, name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("failed to send keys to %s on %s: %v", name, h.SessionLabel(), err)
		},
	})
}

// ClearAndType waits for el to be visible, clears it, pauses for the settle delay so
// client-side handlers observe the empty value, then sends text.
func (h *Helper) ClearAndType(ctx context.Context, el Element, name, text string) Outcome {
	shown := logutil.RedactValue(name, text)
	return h.run(ctx, step{
		op:   OpClearAndType,
		name: name,
		wait: true,
		el:   el,
		cond: Visible,
		act: func(ctx context.Context) error {
			if err := el.Clear(ctx); err != nil {
				return err
			}
			if err := sleep(ctx, h.settleDelay); err != nil {
				return err
			}
			return el.SendKeys(ctx, text)
		},
		passMsg: func() string {
			return fmt.Sprintf("%q sent to %s successfully on %s", shown, name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("failed to clear and send keys to %s on %s: %v", name, h.SessionLabel(), err)
		},
	})
}

// SelectByText selects the option of a dropdown whose visible text equals text.
func (h *Helper) SelectByText(ctx context.Context, el Element, name, text string) Outcome {
	return h.run(ctx, step{
		op:   OpSelect,
		name: name,
		wait: true,
		el:   el,
		cond: Visible,
		act: func(ctx context.Context) error {
			return el.SelectByText(ctx, text)
		},
		passMsg: func() string {
			return fmt.Sprintf("%q selected in %s successfully on %s", text, name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("failed to select %q in %s on %s: %v", text, name, h.SessionLabel(), err)
		},
	})
}

// ScrollIntoView waits for el to be visible and scrolls it to the middle of the viewport.
func (h *Helper) ScrollIntoView(ctx context.Context, el Element, name string) Outcome {
	return h.run(ctx, step{
		op:   OpScroll,
		name: name,
		wait: true,
		el:   el,
		cond: Visible,
		act: func(ctx context.Context) error {
			_, err := el.Call(ctx, scrollIntoViewScript)
			return err
		},
		passMsg: func() string {
			return fmt.Sprintf("scrolled to %s successfully on %s", name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("failed to scroll to %s on %s: %v", name, h.SessionLabel(), err)
		},
	})
}

// WaitVisible waits up to timeout for el to be displayed. A non-positive timeout uses
// the Helper default.
func (h *Helper) WaitVisible(ctx context.Context, el Element, name string, timeout time.Duration) Outcome {
	return h.run(ctx, step{
		op:      OpWaitVisible,
		name:    name,
		wait:    true,
		el:      el,
		cond:    Visible,
		timeout: timeout,
		passMsg: func() string {
			return fmt.Sprintf("%s displayed on %s", name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("%s not displayed on %s: %v", name, h.SessionLabel(), err)
		},
	})
}

// WaitHidden is a negative assertion: el must disappear within timeout. When it stays
// displayed the outcome carries errs.ErrUnexpectedlyVisible.
func (h *Helper) WaitHidden(ctx context.Context, el Element, name string, timeout time.Duration) Outcome {
	return h.run(ctx, step{
		op:      OpWaitHidden,
		name:    name,
		wait:    true,
		el:      el,
		cond:    Hidden,
		timeout: timeout,
		passMsg: func() string {
			return fmt.Sprintf("%s not displayed on %s", name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			if errs.CodeOf(err) != errs.UnexpectedlyVisible {
				return fmt.Sprintf("failed waiting for %s to disappear on %s: %v", name, h.SessionLabel(), err)
			}
			return fmt.Sprintf("%s displayed on %s", name, h.SessionLabel())
		},
	})
}

// ClickViaScript clicks el with a script, bypassing actionability checks.
func (h *Helper) ClickViaScript(ctx context.Context, el Element, name string) Outcome {
	return h.run(ctx, step{
		op:   OpClickViaScript,
		name: name,
		act: func(ctx context.Context) error {
			if el == nil {
				return errs.New(errs.InvalidArgument, "nil element")
			}
			_, err := el.Call(ctx, clickScript)
			return err
		},
		passMsg: func() string {
			return fmt.Sprintf("%s [button] clicked via script successfully on %s", name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("failed to click %s via script on %s: %v", name, h.SessionLabel(), err)
		},
	})
}

// ReadText waits for el to be visible and returns its text. Empty text is logged at
// error level but is not a failure.
func (h *Helper) ReadText(ctx context.Context, el Element, name string) (string, Outcome) {
	var text string
	s := step{
		op:   OpReadText,
		name: name,
		wait: true,
		el:   el,
		cond: Visible,
		act: func(ctx context.Context) error {
			var err error
			text, err = el.Text(ctx)
			return err
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("failed to read text of %s on %s: %v", name, h.SessionLabel(), err)
		},
	}
	s.passLevel = func() slog.Level {
		if text == "" {
			return slog.LevelError
		}
		return slog.LevelInfo
	}
	s.passMsg = func() string {
		if text == "" {
			return fmt.Sprintf("%s contains no text on %s", name, h.SessionLabel())
		}
		return fmt.Sprintf("%q extracted successfully from %s on %s",
			logutil.TruncateForLog(text, maxLoggedText), name, h.SessionLabel())
	}
	o := h.run(ctx, s)
	return text, o
}

// ReadTableText waits for table to be visible and returns the text of every non-empty
// <td> in row-major order. Empty cells are logged and skipped. On failure the cells read
// so far are returned.
func (h *Helper) ReadTableText(ctx context.Context, table Element, name string) ([]string, Outcome) {
	var cells []string
	log := h.logger(ctx)
	o := h.run(ctx, step{
		op:   OpReadTable,
		name: name,
		wait: true,
		el:   table,
		cond: Visible,
		act: func(ctx context.Context) error {
			rows, err := table.FindAll(ctx, "tr")
			if err != nil {
				return err
			}
			for r, row := range rows {
				tds, err := row.FindAll(ctx, "td")
				if err != nil {
					return err
				}
				for c, td := range tds {
					text, err := td.Text(ctx)
					if err != nil {
						return err
					}
					if text == "" {
						log.Error("empty cell value", "element", name, "row", r, "col", c, "session", h.SessionLabel())
						continue
					}
					log.Info("extracted cell", "element", name, "row", r, "col", c, "text", logutil.TruncateForLog(text, maxLoggedText))
					cells = append(cells, text)
				}
			}
			return nil
		},
		passMsg: func() string {
			return fmt.Sprintf("extracted %d cells from %s on %s", len(cells), name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("failed to read table %s on %s: %v", name, h.SessionLabel(), err)
		},
	})
	return cells, o
}

// CaptureScreenshot takes a full-page screenshot, attaches it to the report and returns
// it base64-encoded. A capture failure is reported but never escalated.
func (h *Helper) CaptureScreenshot(ctx context.Context, name string) (string, Outcome) {
	var png []byte
	o := h.run(ctx, step{
		op:   OpScreenshot,
		name: name,
		act: func(ctx context.Context) error {
			var err error
			png, err = h.session.Screenshot(ctx)
			if err != nil {
				return errs.Wrap(errs.Unavailable, "screenshot "+name, err)
			}
			return nil
		},
		passEvidence: func() *Evidence {
			return &Evidence{PNG: png}
		},
		passMsg: func() string {
			return fmt.Sprintf("screenshot captured: %s on %s", name, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("failed to capture screenshot %s on %s: %v", name, h.SessionLabel(), err)
		},
		noEscalate: true,
		noEvidence: true,
	})
	if !o.OK {
		return "", o
	}
	return o.Evidence.Base64(), o
}

// AssertEquals compares actual against expected exactly.
func (h *Helper) AssertEquals(ctx context.Context, actual, expected string) Outcome {
	return h.run(ctx, step{
		op:   OpAssertEquals,
		name: "text",
		act: func(context.Context) error {
			if actual != expected {
				return errs.New(errs.AssertionMismatch,
					fmt.Sprintf("text comparison failed: expected [%s] but found [%s]", expected, actual))
			}
			return nil
		},
		passMsg: func() string {
			return fmt.Sprintf("%q matches expected %q on %s", actual, expected, h.SessionLabel())
		},
		failMsg: func(err error) string {
			return fmt.Sprintf("%s on %s", errs.MessageOf(err), h.SessionLabel())
		},
	})
}

// AssertContains waits for el to be visible and checks that its text contains expected.
func (h *Helper) AssertContains(ctx context.Context, el Element, name, expected string) Outcome {
	var actual string
	return h.run(ctx, step{
		op:   OpAssertContains,
		name: name,
		wait: true,
		el:   el,
		cond: Visible,
		act: func(ctx context.Context) error {
			var err error
			actual, err = el.Text(ctx)
			if err != nil {
				return err
			}
			if !strings.Contains(actual, expected) {
				return errs.New(errs.AssertionMismatch,
					fmt.Sprintf("expected text [%s] not found in %s text [%s]", expected, name, logutil.TruncateForLog(actual, maxLoggedText)))
			}
			return nil
		},
		passMsg: func() string {
			return fmt.Sprintf("%s text %q contains expected text %q on %s",
				name, logutil.TruncateForLog(actual, maxLoggedText), expected, h.SessionLabel())
		},
		failMsg: func(err error) string {
			if errs.CodeOf(err) == errs.AssertionMismatch {
				return fmt.Sprintf("assertion failed: %s on %s", errs.MessageOf(err), h.SessionLabel())
			}
			return fmt.Sprintf("could not compare text of %s on %s: %v", name, h.SessionLabel(), err)
		},
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
