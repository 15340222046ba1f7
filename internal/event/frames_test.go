package event

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFrameEncodeParseRoundTrip(t *testing.T) {
	frames := []Frame{
		NewTextFrame("Hello "),
		NewReasoningFrame("thinking"),
		NewToolCallFrame(ToolInvocation{ToolCallID: "c1", ToolName: "search", Args: json.RawMessage(`{"queries":["a"]}`)}),
		NewToolResultFrame(ToolInvocation{ToolCallID: "c1", ToolName: "search", Result: json.RawMessage(`[]`)}),
		NewAnnotationFrame(map[string]string{"type": "search_query_completed"}),
		NewErrorFrame("boom"),
		NewFinishFrame("stop", Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}),
	}
	var lines []string
	for _, f := range frames {
		lines = append(lines, f.Encode())
	}

	parsed, err := ParseFrames(strings.Join(lines, "\n"))
	if err != nil {
		t.Fatalf("ParseFrames: %v", err)
	}
	if len(parsed) != len(frames) {
		t.Fatalf("got %d frames, want %d", len(parsed), len(frames))
	}
	for i, f := range parsed {
		if f.Kind != frames[i].Kind {
			t.Errorf("frame %d: kind %q, want %q", i, f.Kind, frames[i].Kind)
		}
	}
	if !parsed[len(parsed)-1].Terminal() {
		t.Error("finish frame not terminal")
	}
	if parsed[0].Terminal() {
		t.Error("text frame reported terminal")
	}
}

func TestParseFrameRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"no separator", `just text`},
		{"unknown kind", `z:"hi"`},
		{"invalid payload", `0:{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFrame(tt.line); err == nil {
				t.Errorf("ParseFrame(%q) succeeded, want error", tt.line)
			}
		})
	}
}

func TestPartsFromFramesCollapsesDeltas(t *testing.T) {
	frames := []Frame{
		NewReasoningFrame("let me "),
		NewReasoningFrame("think"),
		NewTextFrame("Hello"),
		NewTextFrame(", world"),
		NewAnnotationFrame(map[string]string{"type": "noise"}),
		NewTextFrame("!"),
	}
	parts, err := PartsFromFrames(frames)
	if err != nil {
		t.Fatalf("PartsFromFrames: %v", err)
	}
	want := []Part{
		ReasoningPart("let me think"),
		TextPart("Hello, world!"),
	}
	if len(parts) != len(want) {
		t.Fatalf("got %d parts, want %d: %+v", len(parts), len(want), parts)
	}
	for i := range want {
		if parts[i].Type != want[i].Type || parts[i].Text != want[i].Text {
			t.Errorf("part %d: got %+v, want %+v", i, parts[i], want[i])
		}
	}
}

func TestPartsFromFramesResultReplacesCall(t *testing.T) {
	args := json.RawMessage(`{"prompt":"a cat"}`)
	result := json.RawMessage(`{"url":"https://img.example/cat.png"}`)
	frames := []Frame{
		NewTextFrame("Generating an image."),
		NewToolCallFrame(ToolInvocation{ToolCallID: "c1", ToolName: "image", Args: args}),
		NewToolResultFrame(ToolInvocation{ToolCallID: "c1", ToolName: "image", Result: result}),
		NewTextFrame("Here it is."),
	}
	parts, err := PartsFromFrames(frames)
	if err != nil {
		t.Fatalf("PartsFromFrames: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3: %+v", len(parts), parts)
	}
	inv := parts[1].ToolInvocation
	if inv == nil {
		t.Fatal("part 1 has no tool invocation")
	}
	if inv.State != ToolStateResult {
		t.Errorf("state %q, want %q", inv.State, ToolStateResult)
	}
	if string(inv.Args) != string(args) {
		t.Errorf("args %s, want %s (call args must survive the result merge)", inv.Args, args)
	}
	if string(inv.Result) != string(result) {
		t.Errorf("result %s, want %s", inv.Result, result)
	}
}

func TestTextFromFrames(t *testing.T) {
	frames := []Frame{
		NewReasoningFrame("hmm"),
		NewTextFrame("one "),
		NewErrorFrame("ignored"),
		NewTextFrame("two"),
	}
	if got := TextFromFrames(frames); got != "one two" {
		t.Errorf("TextFromFrames = %q, want %q", got, "one two")
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	u.Add(Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	if u.PromptTokens != 11 || u.CompletionTokens != 22 || u.TotalTokens != 33 {
		t.Errorf("Usage.Add = %+v", u)
	}
}
