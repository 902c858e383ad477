package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a markdown code fence wrapping the payload, with
// or without a language tag, and trims surrounding whitespace.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 8 && !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractBalanced returns the first balanced {...} region of s, honoring
// string literals and escapes, or "" when none exists.
func extractBalanced(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// decodeReport turns raw model output into a JSON object. Fenced output
// is unwrapped, then parsed strictly; if strict parsing fails, the first
// balanced object embedded in the text is tried. A top-level array
// collapses to its first object element; an empty array collapses to an
// empty object.
func decodeReport(raw string) (map[string]interface{}, error) {
	cleaned := stripFences(raw)

	var v interface{}
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		candidate := extractBalanced(cleaned)
		if candidate == "" {
			return nil, fmt.Errorf("no JSON object in model output: %w", err)
		}
		if err := json.Unmarshal([]byte(candidate), &v); err != nil {
			return nil, fmt.Errorf("malformed JSON in model output: %w", err)
		}
	}

	switch t := v.(type) {
	case map[string]interface{}:
		return t, nil
	case []interface{}:
		if len(t) == 0 {
			return map[string]interface{}{}, nil
		}
		if obj, ok := t[0].(map[string]interface{}); ok {
			return obj, nil
		}
		return nil, fmt.Errorf("model output array contains no object")
	default:
		return nil, fmt.Errorf("model output is %T, want object", v)
	}
}
