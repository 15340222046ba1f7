package tools

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
)

// ImageGenerator renders one image and returns its public URL.
// Satisfied by imagegen.Client.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ImageInput is the model-facing argument schema for image generation.
type ImageInput struct {
	Prompt string `json:"prompt" jsonschema_description:"A detailed visual description of the image to generate."`
}

// ImageResult is returned to the model on success.
type ImageResult struct {
	URL string `json:"url"`
}

// ImageAnnotation tracks generation progress on the stream.
type ImageAnnotation struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	Status     string `json:"status"`
	URL        string `json:"url,omitempty"`
}

func defineImageTool(cfg Config) ai.Tool {
	return genkit.DefineTool(cfg.Genkit, string(KindImage),
		"Generate an image from a text prompt and return a URL to the result.",
		func(tctx *ai.ToolContext, input ImageInput) (any, error) {
			rt := RuntimeFromContext(tctx.Context)
			if rt == nil {
				return nil, fmt.Errorf("image: no turn runtime in context")
			}
			if !rt.Guard.Allow(rt.User, cfg.Costs.Image) {
				return QuotaExceededMessage, nil
			}
			callID := uuid.NewString()
			rt.Annotate(ImageAnnotation{Type: "image_generation", ToolCallID: callID, Status: "generating"})

			url, err := cfg.Images.Generate(tctx.Context, input.Prompt)
			if err != nil {
				// Generation failure is relayed to the model as text so
				// the turn keeps going; no credits are charged.
				rt.Logger.Warn("image generation failed", "error", err)
				rt.Annotate(ImageAnnotation{Type: "image_generation", ToolCallID: callID, Status: "failed"})
				return fmt.Sprintf("Image generation failed: %v. Apologize to the user and suggest trying again.", err), nil
			}
			rt.Annotate(ImageAnnotation{Type: "image_generation", ToolCallID: callID, Status: "completed", URL: url})
			rt.Acct.AddToolCost(cfg.Costs.Image)
			return ImageResult{URL: url}, nil
		})
}
