package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/wingleeio/chat-zeron/internal/event"
	l "github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/store"
)

var errNotFound = errors.New("blob not found")

func strPtr(s string) *string { return &s }

func mustSerialize(t *testing.T, parts []event.Part) []byte {
	t.Helper()
	raw, err := event.SerializeParts(parts)
	if err != nil {
		t.Fatalf("SerializeParts: %v", err)
	}
	return raw
}

func TestReconstructPlainTurns(t *testing.T) {
	logger := l.NewNop()
	turns := []*store.Message{
		{Prompt: "Hi", Parts: mustSerialize(t, []event.Part{event.TextPart("Hello!")})},
		{Prompt: "How are you?", Parts: mustSerialize(t, []event.Part{event.TextPart("Fine, thanks.")})},
	}

	history := Reconstruct(turns, nil, logger)
	wantRoles := []ai.Role{ai.RoleUser, ai.RoleModel, ai.RoleUser, ai.RoleModel}
	if len(history) != len(wantRoles) {
		t.Fatalf("got %d entries, want %d", len(history), len(wantRoles))
	}
	for i, want := range wantRoles {
		if history[i].Role != want {
			t.Errorf("entry %d role = %v, want %v", i, history[i].Role, want)
		}
	}
	if history[1].Text() != "Hello!" {
		t.Errorf("assistant text = %q", history[1].Text())
	}
}

func TestReconstructToolTurn(t *testing.T) {
	logger := l.NewNop()
	args := json.RawMessage(`{"queries":["go"]}`)
	result := json.RawMessage(`[{"url":"https://go.dev"}]`)
	turns := []*store.Message{
		{
			Prompt: "Search for Go",
			Parts: mustSerialize(t, []event.Part{
				event.TextPart("Searching now."),
				event.ToolResultPart("c1", "search", args, result),
				event.TextPart(" Found it."),
			}),
		},
	}

	history := Reconstruct(turns, nil, logger)
	if len(history) != 3 {
		t.Fatalf("got %d entries, want user, assistant, tool", len(history))
	}
	assistant := history[1]
	if assistant.Role != ai.RoleModel {
		t.Fatalf("entry 1 role = %v", assistant.Role)
	}
	var haveText, haveRequest bool
	for _, p := range assistant.Content {
		if p.IsText() && strings.Contains(p.Text, "Searching now.") {
			haveText = true
		}
		if p.IsToolRequest() && p.ToolRequest.Name == "search" {
			haveRequest = true
		}
	}
	if !haveText || !haveRequest {
		t.Errorf("assistant entry incomplete: text=%v request=%v", haveText, haveRequest)
	}

	tool := history[2]
	if tool.Role != ai.RoleTool {
		t.Fatalf("entry 2 role = %v, want tool", tool.Role)
	}
	if len(tool.Content) != 1 || !tool.Content[0].IsToolResponse() {
		t.Errorf("tool entry content = %+v", tool.Content)
	}
}

func TestReconstructFallsBackOnBadParts(t *testing.T) {
	logger := l.NewNop()
	turns := []*store.Message{
		{
			Prompt:  "Hi",
			Parts:   []byte(`{"not":"a part list"`),
			Content: strPtr("Recovered answer"),
		},
	}
	history := Reconstruct(turns, nil, logger)
	if len(history) != 2 {
		t.Fatalf("got %d entries, want 2", len(history))
	}
	if history[1].Role != ai.RoleModel || history[1].Text() != "Recovered answer" {
		t.Errorf("fallback entry = role %v text %q", history[1].Role, history[1].Text())
	}
}

func TestReconstructPendingTurnHasUserEntryOnly(t *testing.T) {
	logger := l.NewNop()
	turns := []*store.Message{
		{Prompt: "Old question", Parts: mustSerialize(t, []event.Part{event.TextPart("Old answer")})},
		{Prompt: "Fresh question"}, // generation not finished yet
	}
	history := Reconstruct(turns, nil, logger)
	if len(history) != 3 {
		t.Fatalf("got %d entries, want 3", len(history))
	}
	last := history[2]
	if last.Role != ai.RoleUser || last.Text() != "Fresh question" {
		t.Errorf("last entry = role %v text %q", last.Role, last.Text())
	}
}

func TestReconstructAttachments(t *testing.T) {
	logger := l.NewNop()
	turns := []*store.Message{
		{Prompt: "What is in this picture?", Files: []string{"uploads/cat.png", "uploads/gone.jpg"}},
	}

	resolve := func(key string) (string, error) {
		if key == "uploads/cat.png" {
			return "https://blobs.example/cat.png", nil
		}
		return "", errNotFound
	}

	history := Reconstruct(turns, resolve, logger)
	if len(history) != 1 {
		t.Fatalf("got %d entries, want 1", len(history))
	}
	user := history[0]
	if user.Role != ai.RoleUser {
		t.Fatalf("role = %v", user.Role)
	}
	// Text plus the one resolvable attachment; the missing key is skipped.
	if len(user.Content) != 2 {
		t.Fatalf("got %d content parts, want 2", len(user.Content))
	}
	media := user.Content[1]
	if !media.IsMedia() || media.Text != "https://blobs.example/cat.png" {
		t.Errorf("media part = %+v", media)
	}
	if media.ContentType != "image/png" {
		t.Errorf("content type = %q, want image/png", media.ContentType)
	}

	// Without a resolver the same turn degrades to plain text.
	plain := Reconstruct(turns, nil, logger)
	if len(plain[0].Content) != 1 {
		t.Errorf("nil resolver produced %d parts, want text only", len(plain[0].Content))
	}
}

func TestMediaContentType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"uploads/a.png", "image/png"},
		{"uploads/b.JPG", "image/jpeg"},
		{"uploads/c.jpeg", "image/jpeg"},
		{"uploads/d.webp", "image/webp"},
		{"uploads/report.pdf", "application/pdf"},
		{"uploads/mystery.bin", ""},
		{"no-extension", ""},
	}
	for _, tt := range tests {
		if got := mediaContentType(tt.key); got != tt.want {
			t.Errorf("mediaContentType(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestReconstructRoleOrderProperty(t *testing.T) {
	logger := l.NewNop()
	// A mix of turn shapes: plain, tool-using, unparseable with fallback,
	// unparseable without fallback, pending.
	turns := []*store.Message{
		{Prompt: "a", Parts: mustSerialize(t, []event.Part{event.TextPart("ra")})},
		{Prompt: "b", Parts: mustSerialize(t, []event.Part{
			event.ToolResultPart("c1", "image", json.RawMessage(`{}`), json.RawMessage(`{"url":"u"}`)),
		})},
		{Prompt: "c", Parts: []byte(`broken`), Content: strPtr("rc")},
		{Prompt: "d", Parts: []byte(`broken`)},
		{Prompt: "e"},
	}
	history := Reconstruct(turns, nil, logger)

	users := 0
	prevRole := ai.RoleTool
	for i, msg := range history {
		switch msg.Role {
		case ai.RoleUser:
			users++
		case ai.RoleModel:
			if prevRole != ai.RoleUser {
				t.Errorf("entry %d: assistant not preceded by user", i)
			}
		case ai.RoleTool:
			if prevRole != ai.RoleModel {
				t.Errorf("entry %d: tool not preceded by assistant", i)
			}
		default:
			t.Errorf("entry %d: unexpected role %v", i, msg.Role)
		}
		prevRole = msg.Role
	}
	if users != len(turns) {
		t.Errorf("user entries = %d, want %d", users, len(turns))
	}
}

func TestSystemPrompt(t *testing.T) {
	now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	user := &store.User{Preferences: "Call me Sam.\x00\x01 Keep it short."}

	prompt := SystemPrompt(user, now)
	if !strings.Contains(prompt, "Saturday, March 14, 2026") {
		t.Errorf("prompt missing date: %q", prompt)
	}
	if !strings.Contains(prompt, "Call me Sam.") {
		t.Errorf("prompt missing preferences")
	}
	if strings.ContainsRune(prompt, '\x00') {
		t.Errorf("control characters not stripped")
	}
	if !strings.Contains(prompt, "Never reveal") {
		t.Errorf("prompt missing non-disclosure instruction")
	}

	empty := SystemPrompt(&store.User{}, now)
	if strings.Contains(empty, "preferences with you") {
		t.Errorf("preference block present for empty preferences")
	}
}
