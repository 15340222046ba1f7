// Package imagegen provides the image-generation capability backed by the
// Gemini API, storing results in blob storage and returning signed URLs.
package imagegen

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/wingleeio/chat-zeron/internal/blob"
	"github.com/wingleeio/chat-zeron/internal/log"
)

// DefaultModel is the image model used when none is configured.
const DefaultModel = "imagen-3.0-generate-002"

// Client generates images from text prompts.
type Client struct {
	gen    *genai.Client
	blobs  blob.Store
	model  string
	logger log.Logger
}

// New creates an image generation client.
func New(ctx context.Context, apiKey, model string, blobs blob.Store, logger log.Logger) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}
	gen, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Client{gen: gen, blobs: blobs, model: model, logger: logger}, nil
}

// Generate renders one image for prompt and returns its retrievable URL.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.gen.Models.GenerateImages(ctx, c.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return "", fmt.Errorf("generating image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return "", fmt.Errorf("generating image: empty response")
	}

	img := resp.GeneratedImages[0].Image
	contentType := img.MIMEType
	if contentType == "" {
		contentType = "image/png"
	}

	key := "images/" + uuid.NewString() + ".png"
	url, err := c.blobs.Put(ctx, key, img.ImageBytes, contentType)
	if err != nil {
		return "", fmt.Errorf("storing image: %w", err)
	}

	c.logger.Debug("image generated", "key", key, "bytes", len(img.ImageBytes))
	return url, nil
}
