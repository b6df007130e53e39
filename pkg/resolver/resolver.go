// Package resolver maps a planner's abstract action names onto the concrete
// tools a live MCP connection declares, and adapts caller arguments to each
// tool's input schema. Both transformations run immediately before a tool
// call and are LLM-assisted with deterministic fallbacks.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/STPDevteam/awesome-server/pkg/llm"
	"github.com/STPDevteam/awesome-server/pkg/models"
)

// ErrNoTools — the service declares no tools, nothing can be resolved.
var ErrNoTools = errors.New("service declares no tools")

// Resolver performs tool name resolution and parameter adaptation.
type Resolver struct {
	llm    llm.Client
	logger *slog.Logger
}

// New creates a resolver over an LLM client.
func New(client llm.Client) *Resolver {
	return &Resolver{llm: client, logger: slog.Default()}
}

// toolChoice is the LLM's answer to the resolution prompt.
type toolChoice struct {
	ToolName  string `json:"tool_name"`
	Reasoning string `json:"reasoning"`
}

// ResolveToolName maps an abstract action onto one of the declared tools.
//
// Cascade: exact match → LLM selection validated against the live list →
// fuzzy bidirectional substring match → first tool as emergency fallback.
// The emergency fallback exists so a mis-planned step still produces a
// concrete tool call the engine can observe and recover from.
func (r *Resolver) ResolveToolName(ctx context.Context, action string, args map[string]any, tools []models.ToolDescriptor) (string, error) {
	if len(tools) == 0 {
		return "", ErrNoTools
	}

	// Exact match: the planner often emits real tool names.
	for _, tool := range tools {
		if tool.Name == action {
			return tool.Name, nil
		}
	}

	resp, err := r.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: resolveSystemPrompt},
		{Role: llm.RoleUser, Content: buildResolvePrompt(action, args, tools)},
	})
	if err == nil {
		var choice toolChoice
		if perr := llm.UnmarshalObject(resp, &choice); perr == nil {
			for _, tool := range tools {
				if tool.Name == choice.ToolName {
					r.logger.Debug("Resolved tool via LLM",
						"action", action, "tool", choice.ToolName, "reasoning", choice.Reasoning)
					return choice.ToolName, nil
				}
			}
			r.logger.Debug("LLM proposed undeclared tool",
				"action", action, "proposed", choice.ToolName)
		}
	} else {
		r.logger.Warn("Tool resolution LLM call failed", "action", action, "error", err)
	}

	if name, ok := fuzzyMatch(action, tools); ok {
		return name, nil
	}

	r.logger.Warn("No tool matched action, using first declared tool",
		"action", action, "fallback", tools[0].Name)
	return tools[0].Name, nil
}

// fuzzyMatch finds a tool whose normalized name contains the normalized
// action, or vice versa.
func fuzzyMatch(action string, tools []models.ToolDescriptor) (string, bool) {
	needle := normalize(action)
	if needle == "" {
		return "", false
	}
	for _, tool := range tools {
		name := normalize(tool.Name)
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			return tool.Name, true
		}
	}
	return "", false
}

// normalize lowercases and strips separators so "getPrice", "get_price",
// and "get price" compare equal.
func normalize(s string) string {
	s = strings.ToLower(s)
	for _, sep := range []string{"_", "-", " "} {
		s = strings.ReplaceAll(s, sep, "")
	}
	return s
}

const resolveSystemPrompt = `You map a requested action onto one of the tools a service actually provides.
Respond with a JSON object: {"tool_name": "<exact name from the list>", "reasoning": "<one sentence>"}.
The tool_name MUST be copied verbatim from the provided tool list.`

func buildResolvePrompt(action string, args map[string]any, tools []models.ToolDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Requested action: %s\n", action)
	if len(args) > 0 {
		if data, err := json.Marshal(args); err == nil {
			fmt.Fprintf(&b, "Caller arguments: %s\n", data)
		}
	}
	b.WriteString("\nAvailable tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&b, "- name: %s\n  description: %s\n", tool.Name, tool.Description)
		if tool.InputSchema != "" {
			fmt.Fprintf(&b, "  input_schema: %s\n", tool.InputSchema)
		}
	}
	b.WriteString("\nSelect the single best tool for the requested action.")
	return b.String()
}
