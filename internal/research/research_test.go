package research

import (
	"strings"
	"testing"
)

func TestTodoCount(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
		want int
	}{
		{"empty", Plan{}, 0},
		{"single topic", Plan{Topics: []Topic{{Title: "a", Todos: []string{"x", "y", "z"}}}}, 3},
		{
			"multiple topics",
			Plan{Topics: []Topic{
				{Title: "a", Todos: []string{"x", "y", "z"}},
				{Title: "b", Todos: []string{"p", "q", "r", "s"}},
			}},
			7,
		},
		{"topic without todos", Plan{Topics: []Topic{{Title: "a"}}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.plan.TodoCount(); got != tt.want {
				t.Errorf("TodoCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExecuteSystemPromptRendersPlan(t *testing.T) {
	plan := Plan{Topics: []Topic{
		{Title: "History of the topic", Todos: []string{"find origin date", "find key people"}},
		{Title: "Current state", Todos: []string{"find latest release"}},
	}}
	got := executeSystemPrompt(plan)

	for _, want := range []string{
		"research_search",
		"- History of the topic\n",
		"  - find origin date\n",
		"  - find key people\n",
		"- Current state\n",
		"  - find latest release\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Index(got, "History of the topic") > strings.Index(got, "Current state") {
		t.Error("topics rendered out of plan order")
	}
}

func TestSessionDeduplicatesSources(t *testing.T) {
	s := &session{callID: "c1"}
	s.addSource(Source{URL: "https://a.example/x", Title: "first"})
	s.addSource(Source{URL: "https://a.example/x", Title: "duplicate"})
	s.addSource(Source{URL: "https://b.example/y", Title: "second"})

	got := s.take()
	if len(got) != 2 {
		t.Fatalf("take() returned %d sources, want 2", len(got))
	}
	if got[0].Title != "first" || got[1].Title != "second" {
		t.Errorf("sources = %+v, want first occurrence kept in order", got)
	}
}
