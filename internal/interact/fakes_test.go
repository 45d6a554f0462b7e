package interact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kuitang/webact/internal/errs"
)

var fakePNG = []byte("\x89PNG fake")

type fakeSession struct {
	label       string
	screenshots int
	shotErr     error
	readyStates []string
	evalErr     error
	evals       int
}

func (s *fakeSession) Label() string { return s.label }

func (s *fakeSession) Eval(_ context.Context, expression string) (any, error) {
	s.evals++
	if s.evalErr != nil {
		return nil, s.evalErr
	}
	if expression != readyStateExpression {
		return nil, fmt.Errorf("unexpected expression %q", expression)
	}
	if len(s.readyStates) == 0 {
		return "loading", nil
	}
	state := s.readyStates[0]
	if len(s.readyStates) > 1 {
		s.readyStates = s.readyStates[1:]
	}
	return state, nil
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	s.screenshots++
	if s.shotErr != nil {
		return nil, s.shotErr
	}
	return fakePNG, nil
}

// fakeElement satisfies conditions according to its flags. A condition that never holds
// fails with a ConditionTimeout error immediately instead of sleeping.
type fakeElement struct {
	visible  bool
	enabled  bool
	text     string
	textErr  error
	clickErr error
	waitErr  error
	options  []string

	children map[string][]Element

	calls    []string
	typed    string
	selected string
	scripts  []string
	panicOn  string
}

func newVisible(text string) *fakeElement {
	return &fakeElement{visible: true, enabled: true, text: text}
}

func (e *fakeElement) record(call string) {
	e.calls = append(e.calls, call)
	if e.panicOn == call {
		panic("driver exploded in " + call)
	}
}

func (e *fakeElement) WaitFor(_ context.Context, cond Condition, timeout time.Duration) error {
	e.record("wait:" + cond.String())
	if e.waitErr != nil {
		return e.waitErr
	}
	ok := false
	switch cond {
	case Visible:
		ok = e.visible
	case Clickable:
		ok = e.visible && e.enabled
	case Hidden:
		ok = !e.visible
	}
	if !ok {
		return errs.Timeout(fmt.Sprintf("condition %s not met within %s", cond, timeout), context.DeadlineExceeded)
	}
	return nil
}

func (e *fakeElement) Click(context.Context) error {
	e.record("click")
	return e.clickErr
}

func (e *fakeElement) Clear(context.Context) error {
	e.record("clear")
	e.typed = ""
	return nil
}

func (e *fakeElement) SendKeys(_ context.Context, text string) error {
	e.record("send")
	e.typed += text
	return nil
}

func (e *fakeElement) SelectByText(_ context.Context, text string) error {
	e.record("select")
	for _, opt := range e.options {
		if opt == text {
			e.selected = text
			return nil
		}
	}
	return errors.New("cannot locate option with text: " + text)
}

func (e *fakeElement) Text(context.Context) (string, error) {
	e.record("text")
	return e.text, e.textErr
}

func (e *fakeElement) Call(_ context.Context, fn string) (any, error) {
	e.record("call")
	e.scripts = append(e.scripts, fn)
	return nil, nil
}

func (e *fakeElement) FindAll(_ context.Context, tag string) ([]Element, error) {
	e.record("find:" + tag)
	return e.children[tag], nil
}

// tableOf builds a fake <table> whose rows hold the given cell texts.
func tableOf(rows [][]string) *fakeElement {
	table := newVisible("")
	var trs []Element
	for _, row := range rows {
		tr := newVisible("")
		var tds []Element
		for _, cell := range row {
			tds = append(tds, newVisible(cell))
		}
		tr.children = map[string][]Element{"td": tds}
		trs = append(trs, tr)
	}
	table.children = map[string][]Element{"tr": trs}
	return table
}

type entry struct {
	pass     bool
	message  string
	evidence *Evidence
}

type memReporter struct {
	mu      sync.Mutex
	entries []entry
}

func (r *memReporter) RecordPass(_ context.Context, message string, ev *Evidence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{pass: true, message: message, evidence: ev})
}

func (r *memReporter) RecordFail(_ context.Context, message string, ev *Evidence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{message: message, evidence: ev})
}

// fakeT records escalations without failing the real test.
type fakeT struct {
	errors []string
	fatals []string
}

func (t *fakeT) Helper() {}

func (t *fakeT) Errorf(format string, args ...any) {
	t.errors = append(t.errors, fmt.Sprintf(format, args...))
}

func (t *fakeT) Fatalf(format string, args ...any) {
	t.fatals = append(t.fatals, fmt.Sprintf(format, args...))
}
