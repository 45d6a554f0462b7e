package logutil

import (
	"strings"
)

const redacted = "[REDACTED]"

// IsSensitiveLogField returns true when a label likely names a field holding sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, " ", "")

	switch {
	case normalized == "authorization":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"), strings.Contains(normalized, "passcode"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "cookie"):
		return true
	case normalized == "otp", normalized == "pin", strings.Contains(normalized, "pincode"):
		return true
	case strings.Contains(normalized, "cvv"), strings.Contains(normalized, "cardnumber"):
		return true
	default:
		return false
	}
}

// RedactValue redacts a typed value when the element label looks sensitive.
func RedactValue(label, value string) string {
	if IsSensitiveLogField(label) {
		return redacted
	}
	return value
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	return normalized[:maxChars] + "... [truncated]"
}
