package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wingleeio/chat-zeron/internal/websearch"
)

// Searcher issues one search query. Satisfied by websearch.Client.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]websearch.Result, error)
}

// SearchInput is the model-facing argument schema for the search tool.
type SearchInput struct {
	Queries []string `json:"queries" jsonschema_description:"Search queries to run. Use multiple focused queries rather than one broad query."`
}

// QueryResults groups deduplicated results under the query that produced
// them.
type QueryResults struct {
	Query   string             `json:"query"`
	Results []websearch.Result `json:"results"`
}

// SearchAnnotation is the incremental progress event emitted once per
// completed query.
type SearchAnnotation struct {
	Type  string `json:"type"`
	Query string `json:"query"`
	Count int    `json:"count"`
}

const (
	searchResultLimit   = 10
	maxSearchQueries    = 5
	searchStartInterval = 250 * time.Millisecond
)

func defineSearchTool(cfg Config) ai.Tool {
	return genkit.DefineTool(cfg.Genkit, string(KindSearch),
		"Search the web. Accepts multiple queries and returns deduplicated results per query with URL, title, and snippet.",
		func(tctx *ai.ToolContext, input SearchInput) (any, error) {
			rt := RuntimeFromContext(tctx.Context)
			if rt == nil {
				return nil, fmt.Errorf("search: no turn runtime in context")
			}
			if !rt.Guard.Allow(rt.User, cfg.Costs.Search) {
				return QuotaExceededMessage, nil
			}
			queries := input.Queries
			if len(queries) > maxSearchQueries {
				queries = queries[:maxSearchQueries]
			}
			if len(queries) == 0 {
				return nil, fmt.Errorf("search: at least one query is required")
			}

			raw := make([][]websearch.Result, len(queries))
			var mu sync.Mutex
			limiter := rate.NewLimiter(rate.Every(searchStartInterval), 1)
			var group errgroup.Group
			for i, q := range queries {
				group.Go(func() error {
					// Stagger query starts so the provider is not hit
					// with a burst.
					if err := limiter.Wait(tctx.Context); err != nil {
						return nil
					}
					results, err := cfg.Searcher.Search(tctx.Context, q, searchResultLimit)
					if err != nil {
						// A provider failure degrades that query to an
						// empty result; the other queries still count.
						rt.Logger.Warn("search query failed", "query", q, "error", err)
					}
					mu.Lock()
					raw[i] = results
					mu.Unlock()
					rt.Annotate(SearchAnnotation{
						Type:  "search_query_completed",
						Query: q,
						Count: len(results),
					})
					return nil
				})
			}
			_ = group.Wait()

			dedupe := newResultDeduper()
			grouped := make([]QueryResults, len(queries))
			for i, q := range queries {
				grouped[i] = QueryResults{Query: q, Results: dedupe.keep(raw[i])}
			}
			rt.Acct.AddToolCost(cfg.Costs.Search)
			return grouped, nil
		})
}

// resultDeduper drops a result when its exact URL or its normalized
// domain has been seen before, across all queries of one invocation.
type resultDeduper struct {
	seenURL    map[string]bool
	seenDomain map[string]bool
}

func newResultDeduper() *resultDeduper {
	return &resultDeduper{
		seenURL:    make(map[string]bool),
		seenDomain: make(map[string]bool),
	}
}

func (d *resultDeduper) keep(results []websearch.Result) []websearch.Result {
	kept := make([]websearch.Result, 0, len(results))
	for _, r := range results {
		domain := normalizeDomain(r.URL)
		if d.seenURL[r.URL] || (domain != "" && d.seenDomain[domain]) {
			continue
		}
		d.seenURL[r.URL] = true
		if domain != "" {
			d.seenDomain[domain] = true
		}
		kept = append(kept, r)
	}
	return kept
}

// normalizeDomain lowercases the host and strips a leading www prefix.
// Unparseable URLs normalize to the empty string and dedupe by URL only.
func normalizeDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	return strings.TrimPrefix(host, "www.")
}
