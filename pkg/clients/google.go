// Package clients builds the language models used by the development
// research backend.
package clients

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// ModelType is a Gemini model name.
type ModelType string

const (
	// DefaultModel is the default model to use if none is specified
	DefaultModel ModelType = "gemini-3-flash-preview"
	ProModel     ModelType = "gemini-3-pro-preview"
)

// GoogleAi connects to Gemini with the given API key.
func GoogleAi(ctx context.Context, apiKey string, model ModelType) (*googleai.GoogleAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google api key is not set")
	}
	if model == "" {
		model = DefaultModel
	}

	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(string(model)))
	if err != nil {
		return nil, fmt.Errorf("failed to create google ai client: %w", err)
	}
	return llm, nil
}

// New returns Gemini when an API key is configured and the offline canned
// model otherwise.
func New(ctx context.Context, apiKey string, model ModelType) (llms.Model, error) {
	if apiKey == "" {
		slog.Warn("GOOGLE_API_KEY not set, using canned offline model")
		return NewCanned(), nil
	}
	return GoogleAi(ctx, apiKey, model)
}
