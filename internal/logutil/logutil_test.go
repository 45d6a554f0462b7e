package logutil

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestIsSensitiveLogField(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"Password":         true,
		"confirm-password": true,
		"API Key":          true,
		"one_time_token":   true,
		"Card Number":      true,
		"Search box":       false,
		"Email":            false,
		"First name":       false,
		"Loading spinner":  false,
	}
	for label, want := range cases {
		if got := IsSensitiveLogField(label); got != want {
			t.Errorf("IsSensitiveLogField(%q)=%v want %v", label, got, want)
		}
	}
}

func testRedactValue_NeverLeaksSensitive(t *rapid.T) {
	prefix := rapid.StringMatching(`[a-zA-Z ]{0,10}`).Draw(t, "prefix")
	word := rapid.SampledFrom([]string{"password", "Secret", "TOKEN", "api_key"}).Draw(t, "word")
	value := rapid.StringMatching(`[a-zA-Z0-9!@#]{1,40}`).Draw(t, "value")

	got := RedactValue(prefix+word, value)
	if got != redacted {
		t.Fatalf("RedactValue(%q) leaked %q", prefix+word, got)
	}
}

func TestRedactValue_NeverLeaksSensitive(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRedactValue_NeverLeaksSensitive)
}

func TestRedactValue_KeepsPlainValues(t *testing.T) {
	t.Parallel()
	if got := RedactValue("Search", "golang"); got != "golang" {
		t.Fatalf("RedactValue(Search)=%q want golang", got)
	}
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	if got := TruncateForLog("  \n ", 10); got != "" {
		t.Fatalf("blank input should be empty, got %q", got)
	}
	if got := TruncateForLog("a\nb", 10); got != `a\nb` {
		t.Fatalf("newline not escaped: %q", got)
	}
	got := TruncateForLog(strings.Repeat("x", 20), 5)
	if got != "xxxxx... [truncated]" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
