// Package notify tells people about failed runs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/webact/internal/obs"
	"github.com/kuitang/webact/internal/report"
)

// Summary describes a finished run.
type Summary struct {
	RunID  string
	Title  string
	Passed int
	Failed int
	// ReportPath is where the HTML report was written, if anywhere.
	ReportPath string
	Failures   []report.Entry
}

// NewSummary builds a summary from every entry of a run.
func NewSummary(runID, title, reportPath string, entries []report.Entry) Summary {
	s := Summary{RunID: runID, Title: title, ReportPath: reportPath}
	for _, e := range entries {
		if e.Pass {
			s.Passed++
			continue
		}
		s.Failed++
		s.Failures = append(s.Failures, e)
	}
	return s
}

// Subject is the one-line description used as the e-mail subject.
func (s Summary) Subject() string {
	return fmt.Sprintf("[webact] %s: %d failed, %d passed (%s)", s.Title, s.Failed, s.Passed, s.RunID)
}

// Notifier delivers run summaries.
type Notifier interface {
	NotifyFailure(ctx context.Context, s Summary) error
}

// SentNotification represents a captured notification for testing.
type SentNotification struct {
	To      []string
	Summary Summary
}

// MockNotifier captures notifications instead of sending them. When outboxDir is set,
// every notification is also written there as a JSON file.
type MockNotifier struct {
	mu        sync.Mutex
	Sent      []SentNotification
	to        []string
	outboxDir string
	seq       uint64
}

func NewMockNotifier(to []string, outboxDir string) *MockNotifier {
	if outboxDir != "" {
		if err := os.MkdirAll(outboxDir, 0o755); err != nil {
			obs.Pkg("notify").Warn("failed to create outbox dir", "dir", outboxDir, "error", err)
			outboxDir = ""
		}
	}
	return &MockNotifier{to: to, outboxDir: outboxDir}
}

func (m *MockNotifier) NotifyFailure(ctx context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentNotification{To: m.to, Summary: s})
	obs.From(ctx).Info("notification captured", "pkg", "notify", "to", strings.Join(m.to, ","), "subject", s.Subject())
	return m.writeOutboxEvent(s)
}

// Last returns the most recent notification, or the zero value.
func (m *MockNotifier) Last() SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentNotification{}
	}
	return m.Sent[len(m.Sent)-1]
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

type outboxEvent struct {
	Sequence       uint64   `json:"sequence"`
	To             []string `json:"to"`
	Subject        string   `json:"subject"`
	RunID          string   `json:"run_id"`
	Failures       []string `json:"failures"`
	ReportPath     string   `json:"report_path,omitempty"`
	SentAtUnixNano int64    `json:"sent_at_unix_nano"`
}

func (m *MockNotifier) writeOutboxEvent(s Summary) error {
	if m.outboxDir == "" {
		return nil
	}
	m.seq++
	event := outboxEvent{
		Sequence:       m.seq,
		To:             m.to,
		Subject:        s.Subject(),
		RunID:          s.RunID,
		ReportPath:     s.ReportPath,
		SentAtUnixNano: time.Now().UnixNano(),
	}
	for _, f := range s.Failures {
		event.Failures = append(event.Failures, f.Message)
	}

	fileName := fmt.Sprintf("%020d-%020d-%s.json", event.Sequence, event.SentAtUnixNano, sanitizeOutboxComponent(s.RunID))
	finalPath := filepath.Join(m.outboxDir, fileName)
	tempPath := finalPath + ".tmp"

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write outbox temp file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename outbox file: %w", err)
	}
	return nil
}

var outboxSanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9._@-]+`)

func sanitizeOutboxComponent(input string) string {
	safe := strings.TrimSpace(input)
	if safe == "" {
		return "unknown"
	}
	return outboxSanitizePattern.ReplaceAllString(safe, "_")
}
