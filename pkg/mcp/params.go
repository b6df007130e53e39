package mcp

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseStepInput turns the free-form input a planner attached to a workflow
// step into a structured argument map for CallTool.
//
// Planners are asked for a JSON object but don't reliably produce one, so
// the cascade degrades gracefully (first successful parse wins):
//  1. JSON object → map[string]any
//  2. JSON non-object (string, number, array) → {"input": value}
//  3. YAML with complex values (arrays, nested maps) → map[string]any
//  4. "key: value" / "key=value" pairs, comma or newline separated
//  5. Raw string → {"input": string}
//
// Empty input yields an empty map for no-parameter tools.
func ParseStepInput(input string) map[string]any {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}
	}

	if result, ok := parseJSONInput(input); ok {
		return result
	}
	if result, ok := parseYAMLInput(input); ok {
		return result
	}
	if result, ok := parseKeyValueInput(input); ok {
		return result
	}

	return map[string]any{"input": input}
}

// parseJSONInput parses JSON of any shape. Non-object values are wrapped
// as {"input": value}.
func parseJSONInput(input string) (map[string]any, bool) {
	// Quick-reject on the first byte so prose never hits the unmarshaller.
	b := input[0]
	isJSONStart := b == '{' || b == '[' || b == '"' ||
		(b >= '0' && b <= '9') || b == '-' ||
		b == 't' || b == 'f' || b == 'n'
	if !isJSONStart {
		return nil, false
	}

	var raw any
	if err := json.Unmarshal([]byte(input), &raw); err != nil {
		return nil, false
	}
	if m, ok := raw.(map[string]any); ok {
		return m, true
	}
	return map[string]any{"input": raw}, true
}

// parseYAMLInput accepts YAML only when the result carries structure
// (arrays or nested maps). Flat "key: value" lines go to the key-value
// parser instead, to avoid false positives on plain text.
func parseYAMLInput(input string) (map[string]any, bool) {
	var result map[string]any
	if err := yaml.Unmarshal([]byte(input), &result); err != nil {
		return nil, false
	}
	if len(result) == 0 {
		return nil, false
	}
	for _, v := range result {
		switch v.(type) {
		case []any, map[string]any:
			return result, true
		}
	}
	return nil, false
}

// parseKeyValueInput parses "key: value" or "key=value" pairs separated by
// commas or newlines. Rejects the whole input if any part fails, so values
// containing commas fall through to the raw-string fallback.
func parseKeyValueInput(input string) (map[string]any, bool) {
	normalized := strings.ReplaceAll(input, "\n", ",")

	result := make(map[string]any)
	for _, part := range strings.Split(normalized, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := splitPair(part)
		if !ok {
			return nil, false
		}
		result[key] = coerceValue(value)
	}

	if len(result) == 0 {
		return nil, false
	}
	return result, true
}

// splitPair splits one "key: value" or "key=value" pair.
func splitPair(part string) (key, value string, ok bool) {
	for _, sep := range []string{":", "="} {
		if idx := strings.Index(part, sep); idx > 0 {
			k := strings.TrimSpace(part[:idx])
			v := strings.TrimSpace(part[idx+1:])
			if k != "" && !strings.Contains(k, " ") {
				return k, v, true
			}
		}
	}
	return "", "", false
}

// coerceValue converts a string value to the closest JSON-compatible Go type.
func coerceValue(s string) any {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	// NaN/Inf are not valid JSON, keep them as strings.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return s
}
