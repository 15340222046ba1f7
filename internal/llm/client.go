// Package llm wraps model invocation behind a small client the generation
// driver and the research sub-agent share: streaming generation with
// tools, an abort path via context cancellation, and token accounting.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"google.golang.org/genai"

	"github.com/wingleeio/chat-zeron/internal/event"
	"github.com/wingleeio/chat-zeron/internal/log"
)

// StreamRequest describes one model generation.
type StreamRequest struct {
	// ModelName is the provider-qualified name, e.g. "googleai/gemini-2.5-flash".
	ModelName string

	// System is the system prompt text.
	System string

	// Messages is the reconstructed conversation history, oldest first,
	// ending with the current user prompt.
	Messages []*ai.Message

	// Tools are the resolved tool references for this turn. Empty means
	// plain text generation.
	Tools []ai.ToolRef

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTurns bounds tool-call round-trips.
	MaxTurns int
}

// Result is the final outcome of one generation.
type Result struct {
	Text         string
	FinishReason string
	Usage        event.Usage
}

// EmitFunc receives each wire frame as generation proceeds.
// Returning an error aborts the generation.
type EmitFunc func(event.Frame) error

// Client invokes models through Genkit.
type Client struct {
	g      *genkit.Genkit
	logger log.Logger
}

// NewClient initializes Genkit with the Google AI plugin.
func NewClient(ctx context.Context, apiKey string, logger log.Logger) (*Client, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: apiKey}))
	if g == nil {
		return nil, fmt.Errorf("initializing genkit")
	}
	return &Client{g: g, logger: logger}, nil
}

// NewClientWithInstance wraps an existing Genkit instance (tests).
func NewClientWithInstance(g *genkit.Genkit, logger log.Logger) *Client {
	return &Client{g: g, logger: logger}
}

// Instance exposes the underlying Genkit instance for tool registration
// and structured-output calls.
func (c *Client) Instance() *genkit.Genkit {
	return c.g
}

// Stream runs one generation, forwarding incremental output as wire frames
// through emit. Text deltas are paced at word granularity for display.
// Cancelling ctx aborts the model call and any tool call awaiting it.
// A nil emit runs the same generation without incremental delivery.
func (c *Client) Stream(ctx context.Context, req StreamRequest, emit EmitFunc) (*Result, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(req.ModelName),
		ai.WithMessages(req.Messages...),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(req.Temperature)),
		}),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, ai.WithTools(req.Tools...))
		maxTurns := req.MaxTurns
		if maxTurns <= 0 {
			maxTurns = 4
		}
		opts = append(opts, ai.WithMaxTurns(maxTurns))
	}
	if emit != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return forwardChunk(chunk, emit)
		}))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("generating: %w", err)
	}

	result := &Result{
		Text:         resp.Text(),
		FinishReason: string(resp.FinishReason),
	}
	if resp.Usage != nil {
		result.Usage = event.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// forwardChunk translates one model chunk into wire frames.
func forwardChunk(chunk *ai.ModelResponseChunk, emit EmitFunc) error {
	if chunk == nil {
		return nil
	}
	for _, part := range chunk.Content {
		switch {
		case part.IsToolRequest():
			inv := event.ToolInvocation{
				ToolCallID: part.ToolRequest.Ref,
				ToolName:   part.ToolRequest.Name,
				Args:       mustRaw(part.ToolRequest.Input),
			}
			if err := emit(event.NewToolCallFrame(inv)); err != nil {
				return err
			}
		case part.IsToolResponse():
			inv := event.ToolInvocation{
				ToolCallID: part.ToolResponse.Ref,
				ToolName:   part.ToolResponse.Name,
				Result:     mustRaw(part.ToolResponse.Output),
			}
			if err := emit(event.NewToolResultFrame(inv)); err != nil {
				return err
			}
		case part.IsReasoning():
			if part.Text == "" {
				continue
			}
			if err := emit(event.NewReasoningFrame(part.Text)); err != nil {
				return err
			}
		case part.Text != "":
			for _, word := range SplitWords(part.Text) {
				if err := emit(event.NewTextFrame(word)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// mustRaw encodes tool arguments/results for frame payloads. Values come
// from the model protocol and are JSON-shaped already; an encode failure
// degrades to null rather than aborting the stream.
func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
