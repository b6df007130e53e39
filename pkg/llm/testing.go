package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient is a test double that replays canned responses in order.
// Responses are shared between Complete and Stream; Stream delivers the
// response as a handful of deltas to exercise chunk handling.
//
// When Script is exhausted, calls return ErrFor if set, otherwise an error.
type ScriptedClient struct {
	mu     sync.Mutex
	Script []string
	ErrFor error

	// Calls records every prompt sent, for assertions.
	Calls [][]Message
}

// Compile-time check that ScriptedClient implements Client.
var _ Client = (*ScriptedClient)(nil)

// NewScriptedClient creates a stub that replays responses in order.
func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{Script: responses}
}

func (s *ScriptedClient) next(messages []Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, messages)
	if len(s.Script) == 0 {
		if s.ErrFor != nil {
			return "", s.ErrFor
		}
		return "", fmt.Errorf("scripted LLM exhausted after %d calls", len(s.Calls))
	}
	resp := s.Script[0]
	s.Script = s.Script[1:]
	return resp, nil
}

// Complete returns the next scripted response.
func (s *ScriptedClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.next(messages)
}

// Stream returns the next scripted response, delivered in two deltas.
func (s *ScriptedClient) Stream(ctx context.Context, messages []Message, onChunk StreamCallback) (string, error) {
	resp, err := s.next(messages)
	if err != nil {
		return "", err
	}
	if onChunk != nil {
		half := len(resp) / 2
		if half > 0 {
			onChunk(resp[:half])
			onChunk(resp[half:])
		} else {
			onChunk(resp)
		}
	}
	return resp, nil
}

// CallCount returns the number of LLM calls made so far.
func (s *ScriptedClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
