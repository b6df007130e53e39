package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject_Plain(t *testing.T) {
	raw, ok := ExtractJSONObject(`{"tool_name": "get_price", "reasoning": "exact match"}`)
	require.True(t, ok)
	assert.JSONEq(t, `{"tool_name": "get_price", "reasoning": "exact match"}`, raw)
}

func TestExtractJSONObject_ProsePrefix(t *testing.T) {
	text := `Sure! Here is the selection you asked for:

{"tool_name": "search_tweets", "reasoning": "the action mentions searching"}

Let me know if you need anything else.`
	raw, ok := ExtractJSONObject(text)
	require.True(t, ok)
	assert.Contains(t, raw, `"search_tweets"`)
}

func TestExtractJSONObject_MarkdownFence(t *testing.T) {
	text := "```json\n{\"should_continue\": false, \"confidence_score\": 0.9}\n```"
	raw, ok := ExtractJSONObject(text)
	require.True(t, ok)
	assert.Contains(t, raw, `"should_continue"`)
}

func TestExtractJSONObject_NestedAndStrings(t *testing.T) {
	// Braces inside string values must not unbalance the scan.
	text := `prefix {"outer": {"inner": "has } and { inside"}, "n": 1} suffix`
	raw, ok := ExtractJSONObject(text)
	require.True(t, ok)
	assert.JSONEq(t, `{"outer": {"inner": "has } and { inside"}, "n": 1}`, raw)
}

func TestExtractJSONObject_EscapedQuotes(t *testing.T) {
	text := `{"msg": "she said \"hi\" {not a brace}"}`
	raw, ok := ExtractJSONObject(text)
	require.True(t, ok)
	assert.JSONEq(t, text, raw)
}

func TestExtractJSONObject_SkipsInvalidCandidate(t *testing.T) {
	// First balanced candidate is not valid JSON; scan must continue.
	text := `{oops} then {"valid": true}`
	raw, ok := ExtractJSONObject(text)
	require.True(t, ok)
	assert.JSONEq(t, `{"valid": true}`, raw)
}

func TestExtractJSONObject_None(t *testing.T) {
	_, ok := ExtractJSONObject("no structured content here")
	assert.False(t, ok)
}

func TestExtractJSONArray(t *testing.T) {
	text := "Here is the plan:\n```json\n[{\"step\": 1, \"mcp\": \"coingecko\", \"action\": \"get_price\"}]\n```"
	raw, ok := ExtractJSONArray(text)
	require.True(t, ok)

	var steps []map[string]any
	require.NoError(t, UnmarshalArray(raw, &steps))
	require.Len(t, steps, 1)
	assert.Equal(t, "coingecko", steps[0]["mcp"])
}

func TestUnmarshalObject_Error(t *testing.T) {
	var out map[string]any
	err := UnmarshalObject("plain text", &out)
	assert.Error(t, err)
}
