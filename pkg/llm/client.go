// Package llm provides LLM access for the orchestrator: buffered calls for
// planning, observation, and tool resolution, streaming calls for result
// formatting and the final summary.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamCallback receives incremental text deltas during streaming.
type StreamCallback func(delta string)

// Client is the interface the core consumes. Complete is the buffered
// request/response path (planner, observer, resolver, adapter, complexity);
// Stream is the token-streaming path (formatting, final summary). Keeping
// the split explicit lets implementations back each with the cheapest
// transport.
type Client interface {
	// Complete sends a conversation and returns the full assistant reply.
	Complete(ctx context.Context, messages []Message) (string, error)

	// Stream sends a conversation and delivers deltas via onChunk.
	// Returns the full assembled reply once streaming finishes.
	Stream(ctx context.Context, messages []Message, onChunk StreamCallback) (string, error)
}
