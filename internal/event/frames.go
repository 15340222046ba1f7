package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FrameKind is the single-character type code of a wire frame.
type FrameKind string

// Frame kind constants. This set is closed.
// FrameFinish is the terminal control frame: it ends a generation and is
// never appended to the durable stream.
const (
	FrameText       FrameKind = "0"
	FrameReasoning  FrameKind = "g"
	FrameToolCall   FrameKind = "9"
	FrameToolResult FrameKind = "a"
	FrameAnnotation FrameKind = "8"
	FrameError      FrameKind = "3"
	FrameFinish     FrameKind = "d"
)

// Frame is one line of the incremental output protocol: a kind code, a
// colon, and a JSON payload.
type Frame struct {
	Kind    FrameKind
	Payload json.RawMessage
}

// Terminal reports whether this frame ends the generation.
func (f Frame) Terminal() bool {
	return f.Kind == FrameFinish
}

// Encode renders the frame as a single protocol line (without newline).
func (f Frame) Encode() string {
	return string(f.Kind) + ":" + string(f.Payload)
}

// ParseFrame decodes one protocol line.
func ParseFrame(line string) (Frame, error) {
	code, payload, ok := strings.Cut(line, ":")
	if !ok {
		return Frame{}, fmt.Errorf("malformed frame %q: missing separator", truncate(line, 40))
	}
	kind := FrameKind(code)
	switch kind {
	case FrameText, FrameReasoning, FrameToolCall, FrameToolResult,
		FrameAnnotation, FrameError, FrameFinish:
	default:
		return Frame{}, fmt.Errorf("unknown frame kind %q", code)
	}
	if !json.Valid([]byte(payload)) {
		return Frame{}, fmt.Errorf("frame %s: invalid payload", code)
	}
	return Frame{Kind: kind, Payload: json.RawMessage(payload)}, nil
}

// ParseFrames decodes a newline-separated sequence of protocol lines.
// Blank lines are ignored. The first malformed line aborts with an error.
func ParseFrames(text string) ([]Frame, error) {
	var frames []Frame
	for i, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		f, err := ParseFrame(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Usage carries token counts for one or more model calls.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// finishPayload is the body of the terminal control frame.
type finishPayload struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}

// NewTextFrame builds a text-delta frame.
func NewTextFrame(text string) Frame {
	return Frame{Kind: FrameText, Payload: mustJSON(text)}
}

// NewReasoningFrame builds a reasoning-delta frame.
func NewReasoningFrame(text string) Frame {
	return Frame{Kind: FrameReasoning, Payload: mustJSON(text)}
}

// NewToolCallFrame builds a tool-call frame.
func NewToolCallFrame(inv ToolInvocation) Frame {
	inv.State = ToolStateCall
	return Frame{Kind: FrameToolCall, Payload: mustJSON(inv)}
}

// NewToolResultFrame builds a tool-result frame.
func NewToolResultFrame(inv ToolInvocation) Frame {
	inv.State = ToolStateResult
	return Frame{Kind: FrameToolResult, Payload: mustJSON(inv)}
}

// NewAnnotationFrame builds an out-of-band annotation frame.
// The payload conveys tool progress to clients and is not persisted as a part.
func NewAnnotationFrame(v any) Frame {
	return Frame{Kind: FrameAnnotation, Payload: mustJSON(v)}
}

// NewErrorFrame builds an in-band error frame.
func NewErrorFrame(msg string) Frame {
	return Frame{Kind: FrameError, Payload: mustJSON(msg)}
}

// NewFinishFrame builds the terminal control frame.
func NewFinishFrame(reason string, usage Usage) Frame {
	return Frame{Kind: FrameFinish, Payload: mustJSON(finishPayload{FinishReason: reason, Usage: usage})}
}

// PartsFromFrames re-parses a forwarded frame sequence into the structured
// part sequence persisted on the message. Contiguous text deltas collapse
// into one text part, contiguous reasoning deltas into one reasoning part.
// A tool-result frame replaces the matching call part in place; annotations
// and error frames carry no persisted representation.
func PartsFromFrames(frames []Frame) ([]Part, error) {
	var parts []Part
	var text, reasoning strings.Builder

	flushText := func() {
		if text.Len() > 0 {
			parts = append(parts, TextPart(text.String()))
			text.Reset()
		}
	}
	flushReasoning := func() {
		if reasoning.Len() > 0 {
			parts = append(parts, ReasoningPart(reasoning.String()))
			reasoning.Reset()
		}
	}

	for _, f := range frames {
		switch f.Kind {
		case FrameText:
			flushReasoning()
			var s string
			if err := json.Unmarshal(f.Payload, &s); err != nil {
				return nil, fmt.Errorf("text frame: %w", err)
			}
			text.WriteString(s)
		case FrameReasoning:
			flushText()
			var s string
			if err := json.Unmarshal(f.Payload, &s); err != nil {
				return nil, fmt.Errorf("reasoning frame: %w", err)
			}
			reasoning.WriteString(s)
		case FrameToolCall:
			flushText()
			flushReasoning()
			var inv ToolInvocation
			if err := json.Unmarshal(f.Payload, &inv); err != nil {
				return nil, fmt.Errorf("tool-call frame: %w", err)
			}
			parts = append(parts, ToolCallPart(inv.ToolCallID, inv.ToolName, inv.Args))
		case FrameToolResult:
			flushText()
			flushReasoning()
			var inv ToolInvocation
			if err := json.Unmarshal(f.Payload, &inv); err != nil {
				return nil, fmt.Errorf("tool-result frame: %w", err)
			}
			if i := lastCallIndex(parts, inv.ToolCallID); i >= 0 {
				args := parts[i].ToolInvocation.Args
				parts[i] = ToolResultPart(inv.ToolCallID, inv.ToolName, args, inv.Result)
			} else {
				parts = append(parts, ToolResultPart(inv.ToolCallID, inv.ToolName, inv.Args, inv.Result))
			}
		case FrameAnnotation, FrameError, FrameFinish:
			// Not part of the persisted sequence.
		default:
			return nil, fmt.Errorf("unknown frame kind %q", f.Kind)
		}
	}
	flushText()
	flushReasoning()
	return parts, nil
}

// TextFromFrames concatenates the text deltas of a frame sequence.
// This is the plain finalized content used for history fallback and search.
func TextFromFrames(frames []Frame) string {
	var b strings.Builder
	for _, f := range frames {
		if f.Kind != FrameText {
			continue
		}
		var s string
		if err := json.Unmarshal(f.Payload, &s); err != nil {
			continue
		}
		b.WriteString(s)
	}
	return b.String()
}

// lastCallIndex finds the most recent unresolved call part for an id.
func lastCallIndex(parts []Part, callID string) int {
	for i := len(parts) - 1; i >= 0; i-- {
		inv := parts[i].ToolInvocation
		if inv != nil && inv.ToolCallID == callID && inv.State == ToolStateCall {
			return i
		}
	}
	return -1
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unmarshalable inputs (channels, cycles),
		// which would be a programming error in a constructor call.
		panic(fmt.Sprintf("event: marshal %T: %v", v, err))
	}
	return raw
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
