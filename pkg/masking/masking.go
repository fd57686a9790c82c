// Package masking redacts credential-bearing fields and bounds payload sizes
// before structured data reaches log or trace files.
package masking

import "regexp"

// Redacted replaces values stored under sensitive keys.
const Redacted = "[REDACTED]"

// DefaultMaxChars bounds string fields in sanitized payloads.
const DefaultMaxChars = 2000

// sensitiveKeyPattern matches payload keys that carry credentials.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|authorization|token|secret|password)`)

// SensitiveKey reports whether key names a credential-bearing field.
func SensitiveKey(key string) bool {
	return sensitiveKeyPattern.MatchString(key)
}

// RedactKeys returns a copy of v with every value stored under a sensitive
// key replaced by Redacted. Maps and slices are walked recursively; all
// other values pass through unchanged.
func RedactKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if SensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = RedactKeys(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = RedactKeys(item)
		}
		return out
	default:
		return v
	}
}

// Truncate returns a copy of v with every string longer than maxChars cut to
// maxChars-1 characters plus an ellipsis, so the result is exactly maxChars
// characters long. Maps and slices are walked recursively. maxChars <= 0
// disables truncation.
func Truncate(v any, maxChars int) any {
	if maxChars <= 0 {
		return v
	}
	switch val := v.(type) {
	case string:
		return truncateString(val, maxChars)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Truncate(item, maxChars)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Truncate(item, maxChars)
		}
		return out
	default:
		return v
	}
}

// Sanitize redacts sensitive keys, then truncates oversized strings.
// Every payload headed for trace or failure logs goes through here once.
func Sanitize(v any, maxChars int) any {
	return Truncate(RedactKeys(v), maxChars)
}

func truncateString(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars-1]) + "…"
}
