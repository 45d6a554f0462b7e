// Package report collects interaction outcomes in memory and renders them as a run
// report.
package report

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/webact/internal/interact"
	"github.com/kuitang/webact/internal/obs"
)

// Entry is one reported outcome.
type Entry struct {
	ID       string
	Time     time.Time
	Pass     bool
	Message  string
	RunID    string
	Test     string
	Browser  string
	Evidence *interact.Evidence
}

// Status is "PASS" or "FAIL".
func (e Entry) Status() string {
	if e.Pass {
		return "PASS"
	}
	return "FAIL"
}

// NewEntry stamps an entry with an id, the current time and the correlation fields
// carried by ctx.
func NewEntry(ctx context.Context, pass bool, message string, evidence *interact.Evidence) Entry {
	corr := obs.CorrelationFromContext(ctx)
	return Entry{
		ID:       uuid.NewString(),
		Time:     time.Now().UTC(),
		Pass:     pass,
		Message:  message,
		RunID:    corr.RunID,
		Test:     corr.Test,
		Browser:  corr.Browser,
		Evidence: evidence,
	}
}

// Recorder is an in-memory Reporter. It is safe for concurrent use so that several
// Helpers can share one run report.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ interact.Reporter = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) RecordPass(ctx context.Context, message string, evidence *interact.Evidence) {
	r.add(NewEntry(ctx, true, message, evidence))
}

func (r *Recorder) RecordFail(ctx context.Context, message string, evidence *interact.Evidence) {
	r.add(NewEntry(ctx, false, message, evidence))
}

func (r *Recorder) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a copy of the recorded entries in report order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Passed returns the number of pass entries.
func (r *Recorder) Passed() int {
	return r.count(true)
}

// Failed returns the number of fail entries.
func (r *Recorder) Failed() int {
	return r.count(false)
}

func (r *Recorder) count(pass bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Pass == pass {
			n++
		}
	}
	return n
}

type multi []interact.Reporter

// Multi fans every entry out to each reporter in order. Nil reporters are skipped.
func Multi(reporters ...interact.Reporter) interact.Reporter {
	var m multi
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) RecordPass(ctx context.Context, message string, evidence *interact.Evidence) {
	for _, r := range m {
		r.RecordPass(ctx, message, evidence)
	}
}

func (m multi) RecordFail(ctx context.Context, message string, evidence *interact.Evidence) {
	for _, r := range m {
		r.RecordFail(ctx, message, evidence)
	}
}
