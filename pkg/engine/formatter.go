package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/STPDevteam/awesome-server/pkg/llm"
)

// reduceThreshold is the raw-payload size above which the formatting prompt
// asks for field reduction.
const reduceThreshold = 3000

// Formatter converts raw tool output into user-facing Markdown, streaming
// deltas as they arrive. The concatenation of the streamed deltas is the
// authoritative formatted string used for events and persistence.
type Formatter struct {
	llm    llm.Client
	logger *slog.Logger
}

// NewFormatter creates a formatter over an LLM client.
func NewFormatter(client llm.Client) *Formatter {
	return &Formatter{llm: client, logger: slog.Default()}
}

// FormatStream streams the Markdown conversion of a raw result. On LLM
// failure the raw payload passes through unchanged, delivered as a single
// chunk so downstream ordering is preserved.
func (f *Formatter) FormatStream(ctx context.Context, raw string, onChunk func(delta string)) string {
	out, err := f.llm.Stream(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: formatSystemPrompt},
		{Role: llm.RoleUser, Content: buildFormatPrompt(raw)},
	}, onChunk)
	if err != nil || strings.TrimSpace(out) == "" {
		f.logger.Warn("Result formatting failed, passing raw output through", "error", err)
		onChunk(raw)
		return raw
	}
	return out
}

// Format is the non-streaming variant; it produces the same string in one
// buffered call.
func (f *Formatter) Format(ctx context.Context, raw string) string {
	out, err := f.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: formatSystemPrompt},
		{Role: llm.RoleUser, Content: buildFormatPrompt(raw)},
	})
	if err != nil || strings.TrimSpace(out) == "" {
		return raw
	}
	return out
}

// SummarizeStream streams the final run summary from the execution history
// and collected results. Falls back to a deterministic plain-text summary
// when the LLM is unavailable.
func (f *Formatter) SummarizeStream(ctx context.Context, state *ExecutionState, onChunk func(delta string)) string {
	out, err := f.llm.Stream(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: buildSummaryPrompt(state)},
	}, onChunk)
	if err != nil || strings.TrimSpace(out) == "" {
		fallback := fallbackSummary(state)
		onChunk(fallback)
		return fallback
	}
	return out
}

const formatSystemPrompt = `You convert raw tool output (JSON or text) into clean, readable Markdown for an end user.
- Use headings, lists, and tables where they help.
- Preserve every number and identifier exactly.
- No preamble, no code fences around the whole answer.`

func buildFormatPrompt(raw string) string {
	var b strings.Builder
	b.WriteString("Raw tool output:\n\n")
	b.WriteString(raw)
	if len(raw) > reduceThreshold {
		b.WriteString("\n\nThis payload is large: keep only the 10-15 most user-relevant fields and drop verbose low-signal fields (bloom filters, hex blobs, internal metadata).")
	}
	return b.String()
}

const summarySystemPrompt = `You write the final answer for a completed multi-step task.
Summarise what was found or done in clean Markdown, grounded strictly in the step results provided. Preserve every number exactly.`

func buildSummaryPrompt(state *ExecutionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nStep results:\n", state.Query)
	for _, rec := range state.History {
		if !rec.Success {
			fmt.Fprintf(&b, "- step %d (%s): FAILED — %s\n", rec.StepIndex, rec.Tool, rec.Error)
			continue
		}
		result := state.DataStore[fmt.Sprintf("step_%d_result", rec.StepIndex)]
		if len(result) > reduceThreshold {
			result = result[:reduceThreshold] + "… [truncated]"
		}
		fmt.Fprintf(&b, "- step %d (%s): %s\n", rec.StepIndex, rec.Tool, result)
	}
	b.WriteString("\nWrite the final answer for the user.")
	return b.String()
}

// fallbackSummary is used when the summary LLM call fails.
func fallbackSummary(state *ExecutionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Completed %d of %d steps.\n", state.Completed, len(state.Workflow))
	for _, rec := range state.History {
		status := "ok"
		if !rec.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", rec.Tool, status, rec.Summary)
	}
	return b.String()
}

// summarySnippet shortens a raw result for history entries and prompts.
func summarySnippet(raw string) string {
	const maxSnippet = 200
	s := strings.TrimSpace(raw)
	if len(s) > maxSnippet {
		return s[:maxSnippet] + "…"
	}
	return s
}
