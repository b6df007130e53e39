package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject finds the first balanced JSON object in an LLM response,
// tolerating Markdown fences and prefatory prose. The scan respects string
// and escape context, so braces inside string values don't unbalance it.
func ExtractJSONObject(text string) (string, bool) {
	return extractBalanced(text, '{', '}')
}

// ExtractJSONArray finds the first balanced JSON array in an LLM response.
func ExtractJSONArray(text string) (string, bool) {
	return extractBalanced(text, '[', ']')
}

// UnmarshalObject extracts the first JSON object from text and decodes it
// into v. Returns an error when no valid object is found.
func UnmarshalObject(text string, v any) error {
	raw, ok := ExtractJSONObject(text)
	if !ok {
		return fmt.Errorf("no JSON object found in LLM response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode extracted JSON: %w", err)
	}
	return nil
}

// UnmarshalArray extracts the first JSON array from text and decodes it into v.
func UnmarshalArray(text string, v any) error {
	raw, ok := ExtractJSONArray(text)
	if !ok {
		return fmt.Errorf("no JSON array found in LLM response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode extracted JSON: %w", err)
	}
	return nil
}

// extractBalanced scans text for the first open rune and returns the
// substring through its balancing close, validating it parses as JSON.
// On parse failure it keeps scanning from the next candidate open.
func extractBalanced(text string, open, close byte) (string, bool) {
	stripped := stripFences(text)

	for start := 0; start < len(stripped); start++ {
		if stripped[start] != open {
			continue
		}

		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(stripped); i++ {
			ch := stripped[i]

			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' && inString {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = !inString
				continue
			}
			if inString {
				continue
			}

			switch ch {
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					candidate := stripped[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					// Balanced but invalid — try the next opening position.
					i = len(stripped)
				}
			}
			if depth < 0 {
				break
			}
		}
	}
	return "", false
}

// stripFences removes Markdown code fence lines (``` or ```json) so the
// brace scan sees only content. Fences mid-line are left alone — the
// balanced scan skips non-JSON bytes anyway.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
