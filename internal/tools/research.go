package tools

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ResearchFunc runs the deep-research sub-agent for one topic and
// returns its report. The sub-agent reads the turn runtime from ctx for
// progress annotations and usage accounting.
type ResearchFunc func(ctx context.Context, topic string) (any, error)

// ResearchInput is the model-facing argument schema for deep research.
type ResearchInput struct {
	Topic string `json:"topic" jsonschema_description:"The topic or question to research in depth."`
}

func defineResearchTool(cfg Config) ai.Tool {
	return genkit.DefineTool(cfg.Genkit, string(KindResearch),
		"Research a topic in depth: plan sub-questions, search and read sources, and return a sourced report.",
		func(tctx *ai.ToolContext, input ResearchInput) (any, error) {
			rt := RuntimeFromContext(tctx.Context)
			if rt == nil {
				return nil, fmt.Errorf("research: no turn runtime in context")
			}
			if !rt.Guard.Allow(rt.User, cfg.Costs.Research) {
				return QuotaExceededMessage, nil
			}
			report, err := cfg.Research(tctx.Context, input.Topic)
			if err != nil {
				return nil, err
			}
			// Flat cost regardless of how many searches the sub-agent ran.
			rt.Acct.AddToolCost(cfg.Costs.Research)
			return report, nil
		})
}
