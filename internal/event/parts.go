// Package event defines the generated-output event model: the structured
// parts persisted on a message and the framed line protocol used to move
// incremental output through the durable stream.
//
// Both are closed sums. Switches over PartType and FrameKind must be
// exhaustive; unknown variants surface as errors rather than being skipped
// silently, so a new variant fails loudly until handled everywhere.
package event

import (
	"encoding/json"
	"fmt"
)

// PartType discriminates the persisted part union.
type PartType string

// Part type constants. This set is closed.
const (
	PartText           PartType = "text"
	PartReasoning      PartType = "reasoning"
	PartToolInvocation PartType = "tool-invocation"
)

// ToolState is the sub-state of a tool-invocation part.
type ToolState string

// Tool invocation sub-states.
const (
	ToolStateCall   ToolState = "call"
	ToolStateResult ToolState = "result"
)

// ToolInvocation records one tool call and, once resolved, its result.
type ToolInvocation struct {
	State      ToolState       `json:"state"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Part is one entry of a message's serialized UI event sequence.
// The Type field selects which of the remaining fields are meaningful:
// Text for PartText and PartReasoning, ToolInvocation for PartToolInvocation.
type Part struct {
	Type           PartType        `json:"type"`
	Text           string          `json:"text,omitempty"`
	ToolInvocation *ToolInvocation `json:"toolInvocation,omitempty"`
}

// validate checks the part against its declared type.
func (p Part) validate() error {
	switch p.Type {
	case PartText, PartReasoning:
		return nil
	case PartToolInvocation:
		if p.ToolInvocation == nil {
			return fmt.Errorf("tool-invocation part missing toolInvocation")
		}
		switch p.ToolInvocation.State {
		case ToolStateCall, ToolStateResult:
			return nil
		default:
			return fmt.Errorf("unknown tool state %q", p.ToolInvocation.State)
		}
	default:
		return fmt.Errorf("unknown part type %q", p.Type)
	}
}

// ParseParts decodes a persisted UI event sequence.
// Returns an error on malformed JSON or unknown variants; callers decide
// whether to degrade (the reconstructor falls back to plain text).
func ParseParts(raw []byte) ([]Part, error) {
	var parts []Part
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("decode parts: %w", err)
	}
	for i, p := range parts {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
	}
	return parts, nil
}

// SerializeParts encodes parts for persistence.
// Round-trip is idempotent: ParseParts(SerializeParts(x)) preserves x.
func SerializeParts(parts []Part) ([]byte, error) {
	for i, p := range parts {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
	}
	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("encode parts: %w", err)
	}
	return raw, nil
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ReasoningPart builds a reasoning part.
func ReasoningPart(text string) Part {
	return Part{Type: PartReasoning, Text: text}
}

// ToolCallPart builds a tool-invocation part in the call state.
func ToolCallPart(id, name string, args json.RawMessage) Part {
	return Part{Type: PartToolInvocation, ToolInvocation: &ToolInvocation{
		State:      ToolStateCall,
		ToolCallID: id,
		ToolName:   name,
		Args:       args,
	}}
}

// ToolResultPart builds a tool-invocation part in the result state.
func ToolResultPart(id, name string, args, result json.RawMessage) Part {
	return Part{Type: PartToolInvocation, ToolInvocation: &ToolInvocation{
		State:      ToolStateResult,
		ToolCallID: id,
		ToolName:   name,
		Args:       args,
		Result:     result,
	}}
}
