// Package research implements the deep-research sub-agent: a planning
// call that decomposes a topic into sub-questions, then a bounded
// tool-call loop that searches and reads sources before writing a
// sourced report.
package research

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/wingleeio/chat-zeron/internal/event"
	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/tools"
	"github.com/wingleeio/chat-zeron/internal/websearch"
)

const (
	// extraSteps pads the tool-call budget beyond the planned todo count
	// so the model has room for a follow-up search plus the final report.
	extraSteps = 2

	searchLimit  = 5
	contentChars = 3000
	previewChars = 300
)

// ContentFetcher reads a page's main text. Satisfied by websearch.Extractor.
type ContentFetcher interface {
	Content(ctx context.Context, pageURL string, maxChars int) (string, error)
}

// Plan is the structured decomposition produced before execution.
type Plan struct {
	Topics []Topic `json:"topics"`
}

// Topic is one sub-question with its concrete research todos.
type Topic struct {
	Title string   `json:"title"`
	Todos []string `json:"todos" jsonschema_description:"Between three and five concrete research steps for this topic."`
}

// TodoCount returns the total number of planned steps.
func (p Plan) TodoCount() int {
	n := 0
	for _, t := range p.Topics {
		n += len(t.Todos)
	}
	return n
}

// Source is one page the sub-agent read while researching.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Report is the sub-agent's final output, returned to the outer turn as
// the research tool's result.
type Report struct {
	Text    string   `json:"report"`
	Sources []Source `json:"sources"`
}

// Update is the progress annotation emitted on the outer turn's stream.
// ToolCallID correlates all updates of one research run; SubCallID
// correlates the updates of one inner search.
type Update struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	SubCallID  string `json:"subCallId,omitempty"`
	Status     string `json:"status"`
	Query      string `json:"query,omitempty"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	Preview    string `json:"preview,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Config holds the sub-agent's dependencies.
type Config struct {
	Genkit    *genkit.Genkit
	Searcher  tools.Searcher
	Fetcher   ContentFetcher
	ModelName string
	Logger    log.Logger
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return fmt.Errorf("genkit instance is required")
	}
	if cfg.Searcher == nil {
		return fmt.Errorf("searcher is required")
	}
	if cfg.Fetcher == nil {
		return fmt.Errorf("content fetcher is required")
	}
	if cfg.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// Agent runs deep research for one topic at a time. The inner search
// tool is registered once at construction; per-run state travels via
// context so concurrent runs do not interfere.
type Agent struct {
	g      *genkit.Genkit
	search tools.Searcher
	fetch  ContentFetcher
	model  string
	tool   ai.Tool
	logger log.Logger
}

// New builds the agent and registers its inner search tool.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	a := &Agent{
		g:      cfg.Genkit,
		search: cfg.Searcher,
		fetch:  cfg.Fetcher,
		model:  cfg.ModelName,
		logger: cfg.Logger,
	}
	a.tool = a.defineSearchTool()
	return a, nil
}

// Run executes the full research flow for one topic and returns the
// report. It satisfies tools.ResearchFunc.
func (a *Agent) Run(ctx context.Context, topic string) (any, error) {
	rt := tools.RuntimeFromContext(ctx)
	if rt == nil {
		return nil, fmt.Errorf("research: no turn runtime in context")
	}
	sess := &session{callID: uuid.NewString()}
	ctx = contextWithSession(ctx, sess)

	plan, err := a.plan(ctx, rt, topic)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	budget := plan.TodoCount() + extraSteps

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.model),
		ai.WithSystem(executeSystemPrompt(plan)),
		ai.WithPrompt(topic),
		ai.WithTools(a.tool),
		ai.WithMaxTurns(budget),
	)
	if err != nil {
		return nil, fmt.Errorf("executing: %w", err)
	}
	addUsage(rt, resp)

	rt.Annotate(Update{
		Type:       "research_update",
		ToolCallID: sess.callID,
		Status:     "completed",
		Message:    "Research completed",
	})
	return Report{Text: resp.Text(), Sources: sess.take()}, nil
}

// plan asks the model for a structured topic decomposition.
func (a *Agent) plan(ctx context.Context, rt *tools.Runtime, topic string) (Plan, error) {
	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.model),
		ai.WithSystem(planSystemPrompt),
		ai.WithPrompt(topic),
		ai.WithOutputType(Plan{}),
	)
	if err != nil {
		return Plan{}, err
	}
	addUsage(rt, resp)

	var plan Plan
	if err := resp.Output(&plan); err != nil {
		return Plan{}, err
	}
	if plan.TodoCount() == 0 {
		return Plan{}, fmt.Errorf("empty plan for topic %q", topic)
	}
	return plan, nil
}

// defineSearchTool registers the inner search-and-read tool the
// execution loop calls. Each invocation searches, reads the top results,
// and reports progress on the outer turn's stream.
func (a *Agent) defineSearchTool() ai.Tool {
	type input struct {
		Query string `json:"query" jsonschema_description:"A focused search query for one research step."`
	}
	type reading struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	type output struct {
		Results  []websearch.Result `json:"results"`
		Readings []reading          `json:"readings"`
	}

	return genkit.DefineTool(a.g, "research_search",
		"Search the web for one research step and read the most relevant results.",
		func(tctx *ai.ToolContext, in input) (output, error) {
			rt := tools.RuntimeFromContext(tctx.Context)
			sess := sessionFromContext(tctx.Context)
			if rt == nil || sess == nil {
				return output{}, fmt.Errorf("research search: no run state in context")
			}
			subID := uuid.NewString()
			rt.Annotate(Update{
				Type:       "research_update",
				ToolCallID: sess.callID,
				SubCallID:  subID,
				Status:     "searching",
				Query:      in.Query,
			})

			results, err := a.search.Search(tctx.Context, in.Query, searchLimit)
			if err != nil {
				// A failed search degrades to an empty result set so the
				// run keeps going.
				a.logger.Debug("research search failed", "query", in.Query, "error", err)
				results = nil
			}
			for _, r := range results {
				rt.Annotate(Update{
					Type:       "research_update",
					ToolCallID: sess.callID,
					SubCallID:  subID,
					Status:     "searching_completed",
					Query:      in.Query,
					URL:        r.URL,
					Title:      r.Title,
				})
			}

			out := output{Results: results}
			for _, r := range results {
				content, err := a.fetch.Content(tctx.Context, r.URL, contentChars)
				if err != nil {
					// A page that will not load is skipped, not fatal.
					a.logger.Debug("research read failed", "url", r.URL, "error", err)
					continue
				}
				out.Readings = append(out.Readings, reading{URL: r.URL, Title: r.Title, Content: content})
				sess.addSource(Source{URL: r.URL, Title: r.Title})
				rt.Annotate(Update{
					Type:       "research_update",
					ToolCallID: sess.callID,
					SubCallID:  subID,
					Status:     "reading_completed",
					URL:        r.URL,
					Title:      r.Title,
					Preview:    websearch.Truncate(content, previewChars),
				})
			}
			return out, nil
		})
}

func addUsage(rt *tools.Runtime, resp *ai.ModelResponse) {
	if resp == nil || resp.Usage == nil {
		return
	}
	rt.Acct.AddUsage(event.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	})
}

// session carries one run's correlation id and collected sources.
type session struct {
	callID string

	mu      sync.Mutex
	sources []Source
}

func (s *session) addSource(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.sources {
		if have.URL == src.URL {
			return
		}
	}
	s.sources = append(s.sources, src)
}

func (s *session) take() []Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources
}

type sessionKey struct{}

func contextWithSession(ctx context.Context, s *session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFromContext(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}

const planSystemPrompt = `You are a research planner. Break the user's topic into
the smallest set of sub-topics that together cover it, with three to five
concrete research steps per sub-topic. Steps should name the specific
information to find, not generic advice.`

// executeSystemPrompt renders the plan into the execution system prompt.
func executeSystemPrompt(plan Plan) string {
	var b strings.Builder
	b.WriteString("You are a research agent. Work through the plan below using the ")
	b.WriteString("research_search tool, one step per call. When the plan is covered, ")
	b.WriteString("write a thorough report citing the sources you read by URL.\n\nPlan:\n")
	for _, t := range plan.Topics {
		b.WriteString("- " + t.Title + "\n")
		for _, todo := range t.Todos {
			b.WriteString("  - " + todo + "\n")
		}
	}
	return b.String()
}
