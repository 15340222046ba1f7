package llm

import (
	"strings"
	"testing"
)

func TestSplitWordsReassembles(t *testing.T) {
	tests := []string{
		"",
		"one",
		"two words",
		"trailing space ",
		"  leading and   internal   runs",
		"line\nbreaks\nand\ttabs",
		"unicode: héllo wörld 日本語 テスト",
	}
	for _, input := range tests {
		words := SplitWords(input)
		if got := strings.Join(words, ""); got != input {
			t.Errorf("SplitWords(%q) joined = %q, want original", input, got)
		}
		for i, w := range words[:max(0, len(words)-1)] {
			if w == "" {
				t.Errorf("SplitWords(%q) produced empty word at %d", input, i)
			}
		}
	}
}

func TestSplitWordsGranularity(t *testing.T) {
	words := SplitWords("alpha beta gamma")
	if len(words) != 3 {
		t.Fatalf("got %d words %q, want 3", len(words), words)
	}
	if words[0] != "alpha " || words[1] != "beta " || words[2] != "gamma" {
		t.Errorf("unexpected split: %q", words)
	}
}
