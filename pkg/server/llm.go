package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
)

const maxRetries = 3

// generateWithRetry attempts to generate content and validates it using the provided function.
// It retries up to 3 times if the LLM fails or the validator returns an error.
func generateWithRetry(ctx context.Context, llm llms.Model, logger *slog.Logger, delay time.Duration, prompts []llms.MessageContent, validator func(string) error, options ...llms.CallOption) (string, error) {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay * time.Duration(i)): // Linear backoff
			}
		}

		resp, err := llm.GenerateContent(ctx, prompts, options...)
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := resp.Choices[0].Content
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

func nonEmpty(content string) error {
	if content == "" {
		return fmt.Errorf("empty response")
	}
	return nil
}

func prompt(system, human string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, human),
	}
}
