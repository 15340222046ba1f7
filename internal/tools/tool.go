// Package tools defines the closed set of model-invocable tools: web
// search, image generation, and deep research.
//
// Tool dispatch is a closed tagged variant. Each kind is registered with
// Genkit exactly once at startup; per-turn state (user, message,
// annotation emitter, accounting) travels via context so handlers stay
// stateless.
package tools

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/store"
)

// Kind identifies one tool variant. The set is closed; ParseKind rejects
// anything else, so there is no runtime "is this a valid tool" ambiguity.
type Kind string

// Tool kinds.
const (
	KindSearch   Kind = "search"
	KindImage    Kind = "image"
	KindResearch Kind = "research"
)

// ParseKind validates a requested tool name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSearch, KindImage, KindResearch:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown tool %q", s)
	}
}

// Costs holds the fixed credit cost per tool invocation.
type Costs struct {
	Search   int
	Image    int
	Research int
}

// Config holds all dependencies for the tool registry.
type Config struct {
	Genkit   *genkit.Genkit
	Searcher Searcher
	Images   ImageGenerator
	Research ResearchFunc
	Guard    *CreditGuard
	Costs    Costs
	Logger   log.Logger
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return fmt.Errorf("genkit instance is required")
	}
	if cfg.Searcher == nil {
		return fmt.Errorf("searcher is required")
	}
	if cfg.Images == nil {
		return fmt.Errorf("image generator is required")
	}
	if cfg.Research == nil {
		return fmt.Errorf("research runner is required")
	}
	if cfg.Guard == nil {
		return fmt.Errorf("credit guard is required")
	}
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// Registry maps tool kinds to their registered Genkit tools.
// Built once at startup; read-only afterwards, safe for concurrent use.
type Registry struct {
	byKind map[Kind]ai.Tool
	logger log.Logger
}

// NewRegistry registers all tools with Genkit and returns the registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		byKind: map[Kind]ai.Tool{
			KindSearch:   defineSearchTool(cfg),
			KindImage:    defineImageTool(cfg),
			KindResearch: defineResearchTool(cfg),
		},
		logger: cfg.Logger,
	}
	r.logger.Info("tool registry initialized", "tools", len(r.byKind))
	return r, nil
}

// ForModel resolves the tool set for one turn.
//
// A model that does not advertise the tools capability gets an empty set
// regardless of the request. With an explicit request, only that tool is
// enabled. With no request, image generation alone is enabled by default.
func (r *Registry) ForModel(model *store.Model, requested *Kind) []ai.ToolRef {
	if model == nil || !model.Supports(store.CapabilityTools) {
		return nil
	}
	kind := KindImage
	if requested != nil {
		kind = *requested
	}
	tool, ok := r.byKind[kind]
	if !ok {
		return nil
	}
	return []ai.ToolRef{tool}
}
