package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONRE = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSONObject pulls the first JSON object out of raw model output.
// Three strategies are tried in order: the whole string as JSON, a fenced
// ```json code block, and the first balanced {...} found by brace
// counting. Returns false when none yields an object.
func ExtractJSONObject(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	if obj, ok := unmarshalObject(raw); ok {
		return obj, true
	}

	if m := fencedJSONRE.FindStringSubmatch(raw); m != nil {
		if obj, ok := unmarshalObject(m[1]); ok {
			return obj, true
		}
	}

	if candidate := firstBalancedObject(raw); candidate != "" {
		if obj, ok := unmarshalObject(candidate); ok {
			return obj, true
		}
	}
	return nil, false
}

func unmarshalObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// firstBalancedObject returns the first {...} span with balanced braces,
// ignoring braces inside JSON string literals.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
