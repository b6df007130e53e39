package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/STPDevteam/awesome-server/pkg/config"
)

// OpenAIClient implements Client using the OpenAI-compatible protocol.
// Works with any endpoint that supports the chat completions API.
type OpenAIClient struct {
	client *openailib.Client
	cfg    *config.LLMConfig
}

// Compile-time check that OpenAIClient implements Client.
var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg *config.LLMConfig) (*OpenAIClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm config: api key is required")
	}

	clientConfig := openailib.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openailib.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Complete sends messages to the LLM and returns the full response.
// Retries transient failures with linear backoff.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	req := c.buildRequest(messages, false)

	var resp openailib.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, lastErr = c.client.CreateChatCompletion(ctx, req)
		if lastErr == nil {
			break
		}
		if attempt < c.cfg.MaxRetries {
			wait := time.Duration(attempt+1) * time.Second
			slog.Warn("LLM call failed, retrying",
				"attempt", attempt+1, "max_retries", c.cfg.MaxRetries,
				"wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("LLM call failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from LLM")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends messages and streams the response token-by-token.
// Falls back to the buffered path when stream creation fails or no
// callback is provided.
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, onChunk StreamCallback) (string, error) {
	if onChunk == nil {
		return c.Complete(ctx, messages)
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	req := c.buildRequest(messages, true)

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		slog.Warn("LLM stream creation failed, falling back to buffered call", "error", err)
		return c.Complete(ctx, messages)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunkResp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Partial content is still useful — return what we have.
			if sb.Len() > 0 {
				slog.Warn("LLM stream interrupted", "chars", sb.Len(), "error", err)
				break
			}
			return "", fmt.Errorf("stream recv error: %w", err)
		}
		if len(chunkResp.Choices) > 0 {
			if delta := chunkResp.Choices[0].Delta.Content; delta != "" {
				sb.WriteString(delta)
				onChunk(delta)
			}
		}
	}

	return sb.String(), nil
}

func (c *OpenAIClient) buildRequest(messages []Message, stream bool) openailib.ChatCompletionRequest {
	openaiMsgs := make([]openailib.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openaiMsgs[i] = openailib.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openailib.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: openaiMsgs,
		Stream:   stream,
	}
	if c.cfg.Temperature != nil {
		req.Temperature = *c.cfg.Temperature
	}
	if c.cfg.MaxTokens > 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}
	return req
}
