package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/STPDevteam/awesome-server/pkg/llm"
)

// adaptedParams is the LLM's answer to the adaptation prompt.
type adaptedParams struct {
	ToolName    string         `json:"tool_name"`
	InputParams map[string]any `json:"input_params"`
	Reasoning   string         `json:"reasoning"`
}

// AdaptParameters reshapes caller arguments to a tool's declared input
// schema. The LLM sees the schema, the caller args, and — when present —
// the raw output of the immediately preceding successful step, and must
// emit exact schema property names with actual values extracted from that
// output, never placeholder descriptions.
//
// On LLM or parse failure the caller args pass through the deterministic
// camelCase→snake_case rename pass instead, so a call is always attempted.
func (r *Resolver) AdaptParameters(ctx context.Context, toolName string, args map[string]any, schema string, prevResult string) map[string]any {
	props := schemaProperties(schema)

	resp, err := r.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: adaptSystemPrompt},
		{Role: llm.RoleUser, Content: buildAdaptPrompt(toolName, args, schema, prevResult)},
	})
	if err != nil {
		r.logger.Warn("Parameter adaptation LLM call failed", "tool", toolName, "error", err)
		return renameToSchema(args, props)
	}

	var adapted adaptedParams
	if perr := llm.UnmarshalObject(resp, &adapted); perr != nil || adapted.InputParams == nil {
		r.logger.Debug("Parameter adaptation response unparseable, passing args through",
			"tool", toolName)
		return renameToSchema(args, props)
	}

	return renameToSchema(adapted.InputParams, props)
}

// renameToSchema renames any arg whose snake_case form matches a schema
// property. Unknown args pass through untouched — the tool itself is the
// final validator.
func renameToSchema(args map[string]any, props map[string]bool) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		if len(props) > 0 && !props[key] {
			if snake := toSnakeCase(key); props[snake] {
				out[snake] = value
				continue
			}
		}
		out[key] = value
	}
	return out
}

// schemaProperties extracts top-level property names from a JSON Schema.
func schemaProperties(schema string) map[string]bool {
	if schema == "" {
		return nil
	}
	var parsed struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal([]byte(schema), &parsed); err != nil {
		return nil
	}
	props := make(map[string]bool, len(parsed.Properties))
	for name := range parsed.Properties {
		props[name] = true
	}
	return props
}

// toSnakeCase converts camelCase to snake_case. Already-snake input is
// returned unchanged.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

const adaptSystemPrompt = `You adapt arguments to a tool's input schema before the tool is called.
Respond with a JSON object: {"tool_name": "<tool>", "input_params": {...}, "reasoning": "<one sentence>"}.
Rules:
- input_params keys MUST be the exact property names from the schema.
- When previous step output is provided, extract ACTUAL values from it. Never emit placeholder text like "<the user id from step 1>".
- Omit properties you have no value for.`

func buildAdaptPrompt(toolName string, args map[string]any, schema string, prevResult string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool: %s\n", toolName)
	if schema != "" {
		fmt.Fprintf(&b, "Input schema: %s\n", schema)
	}
	if data, err := json.Marshal(args); err == nil {
		fmt.Fprintf(&b, "Caller arguments: %s\n", data)
	}
	if prevResult != "" {
		fmt.Fprintf(&b, "\nOutput of the previous step:\n%s\n", truncate(prevResult, 4000))
	}
	b.WriteString("\nProduce input_params matching the schema exactly.")
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... [truncated]"
}
