package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/store"
	"github.com/wingleeio/chat-zeron/internal/websearch"
)

func TestResultDeduper(t *testing.T) {
	d := newResultDeduper()

	first := d.keep([]websearch.Result{
		{URL: "https://go.dev/doc", Title: "Docs"},
		{URL: "https://go.dev/doc", Title: "Docs again"},      // same URL
		{URL: "https://www.go.dev/blog", Title: "Blog"},       // same domain, www-prefixed
		{URL: "https://pkg.go.dev/testing", Title: "testing"}, // new domain
		{URL: "https://PKG.go.dev/fmt", Title: "fmt"},         // same domain, case differs
	})
	wantURLs := []string{"https://go.dev/doc", "https://pkg.go.dev/testing"}
	if len(first) != len(wantURLs) {
		t.Fatalf("kept %d results, want %d: %+v", len(first), len(wantURLs), first)
	}
	for i, r := range first {
		if r.URL != wantURLs[i] {
			t.Errorf("result %d: %q, want %q", i, r.URL, wantURLs[i])
		}
	}

	// Dedup state spans calls within one invocation.
	second := d.keep([]websearch.Result{
		{URL: "https://go.dev/tour", Title: "Tour"},
		{URL: "https://example.com/a", Title: "Example"},
	})
	if len(second) != 1 || second[0].URL != "https://example.com/a" {
		t.Errorf("cross-query dedup failed: %+v", second)
	}
}

func TestResultDeduperNoSharedDomainOrURL(t *testing.T) {
	d := newResultDeduper()
	kept := d.keep([]websearch.Result{
		{URL: "https://a.example/1"},
		{URL: "https://b.example/1"},
		{URL: "https://a.example/2"},
		{URL: "https://b.example/1"},
		{URL: "https://c.example/1"},
	})
	seenURL := map[string]bool{}
	seenDomain := map[string]bool{}
	for _, r := range kept {
		if seenURL[r.URL] {
			t.Errorf("duplicate URL in output: %s", r.URL)
		}
		seenURL[r.URL] = true
		domain := normalizeDomain(r.URL)
		if seenDomain[domain] {
			t.Errorf("duplicate domain in output: %s", domain)
		}
		seenDomain[domain] = true
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.example.com/page", "example.com"},
		{"https://Example.COM/other", "example.com"},
		{"http://sub.example.com", "sub.example.com"},
		{"not a url", ""},
		{"/relative/path", ""},
	}
	for _, tt := range tests {
		if got := normalizeDomain(tt.raw); got != tt.want {
			t.Errorf("normalizeDomain(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

// scriptedSearcher fails the queries named in fail and answers the rest
// with one result each.
type scriptedSearcher struct {
	fail map[string]bool
}

func (s scriptedSearcher) Search(_ context.Context, query string, _ int) ([]websearch.Result, error) {
	if s.fail[query] {
		return nil, errors.New("provider returned 502")
	}
	return []websearch.Result{{URL: "https://" + query + ".example/doc", Title: query}}, nil
}

func TestSearchToolSurvivesFailedQuery(t *testing.T) {
	g := genkit.Init(context.Background())
	tool := defineSearchTool(Config{
		Genkit:   g,
		Searcher: scriptedSearcher{fail: map[string]bool{"bad": true}},
		Costs:    Costs{Search: 3},
	})

	acct := &Accounting{}
	rt := &Runtime{
		User:   &store.User{},
		Guard:  &CreditGuard{FreeLimit: 100, PremiumLimit: 500},
		Acct:   acct,
		Logger: log.NewNop(),
	}
	ctx := ContextWithRuntime(context.Background(), rt)

	out, err := tool.RunRaw(ctx, map[string]any{"queries": []string{"good", "bad"}})
	if err != nil {
		t.Fatalf("RunRaw: %v", err)
	}

	// The output went through a JSON round trip inside genkit.
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal output: %v", err)
	}
	var grouped []QueryResults
	if err := json.Unmarshal(data, &grouped); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(grouped) != 2 {
		t.Fatalf("got %d query groups, want 2: %s", len(grouped), data)
	}
	if grouped[0].Query != "good" || len(grouped[0].Results) != 1 {
		t.Errorf("healthy query lost its results: %+v", grouped[0])
	}
	if grouped[1].Query != "bad" || len(grouped[1].Results) != 0 {
		t.Errorf("failed query should come back empty, got %+v", grouped[1])
	}
	if _, cost := acct.Totals(); cost != 3 {
		t.Errorf("tool cost = %d, want 3", cost)
	}
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"search", "image", "research"} {
		if _, err := ParseKind(valid); err != nil {
			t.Errorf("ParseKind(%q) = %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "Search", "video", "deep_research"} {
		if _, err := ParseKind(invalid); err == nil {
			t.Errorf("ParseKind(%q) succeeded, want error", invalid)
		}
	}
}
