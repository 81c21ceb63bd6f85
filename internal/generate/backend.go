// Package generate streams SQL candidates from a language model.
package generate

import (
	"context"

	"google.golang.org/genai"

	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/prompt"
)

// Backend produces model output for a composed request, calling emit for
// each text fragment as it arrives. Returning an error from emit stops
// the stream.
type Backend interface {
	Generate(ctx context.Context, req prompt.Request, emit func(chunk string) error) error
}

// GenAIBackend streams SQL from the Gemini API.
type GenAIBackend struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
}

// NewGenAIBackend creates a Gemini-backed generation backend.
func NewGenAIBackend(ctx context.Context, cfg config.GenerationConfig) (*GenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrTypeCredential, "generation API key is required").
			WithSuggestion("Set QUERYMIND_GENERATION_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeGeneration, "failed to create GenAI client")
	}

	return &GenAIBackend{
		client:          client,
		model:           cfg.Model,
		temperature:     float32(cfg.Temperature),
		maxOutputTokens: int32(cfg.MaxOutputTokens),
	}, nil
}

// Generate streams model output fragments to emit until the model
// finishes or the context is canceled.
func (b *GenAIBackend) Generate(ctx context.Context, req prompt.Request, emit func(chunk string) error) error {
	contents := []*genai.Content{
		genai.NewContentFromText(req.User, genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(b.temperature),
		MaxOutputTokens:   b.maxOutputTokens,
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
	}

	for resp, err := range b.client.Models.GenerateContentStream(ctx, b.model, contents, cfg) {
		if err != nil {
			return err
		}

		if text := resp.Text(); text != "" {
			if err := emit(text); err != nil {
				return err
			}
		}
	}

	return nil
}
