// Package llm implements paper enrichment through Google's Gemini API:
// tag extraction, short Chinese summaries, and abstract translation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/binbla/ArxivPusherBot/internal/config"
)

// Generator is the minimal generation surface the enricher depends on.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RetryPolicy describes the backoff applied to retriable API failures.
// Delay for attempt n (zero-based) is BaseDelay * Multiplier^n.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// Delay returns the backoff delay before retrying after the given
// zero-based failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.Multiplier
	}
	return time.Duration(delay)
}

type geminiClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	retry         RetryPolicy
}

// NewClient creates a Gemini-backed Generator with the configured
// retry policy.
func NewClient(ctx context.Context, cfg *config.LLMConfig, log *slog.Logger) (Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm API key is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	logger := log.With("component", "llm_client")
	logger.Info("LLM client initialized", "model", cfg.Model)

	return &geminiClient{
		genaiClient: gi,
		log:         logger,
		contentConfig: &genai.GenerateContentConfig{
			Temperature: &temperature,
		},
		modelName: cfg.Model,
		retry: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			Multiplier:  cfg.BackoffMultiple,
		},
	}, nil
}

// Generate runs one generation request under the retry policy and
// returns the trimmed response text.
func (c *geminiClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	cfg := *c.contentConfig
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}

	resp, err := c.generateWithRetries(ctx, contents, &cfg)
	if err != nil {
		return "", err
	}

	return c.extractText(ctx, resp)
}

// generateWithRetries retries API-side failures (HTTP 500/503) with the
// configured exponential backoff. Other errors fail immediately.
func (c *geminiClient) generateWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		var apiErr *genai.APIError
		if !errors.As(err, &apiErr) || (apiErr.Code != 500 && apiErr.Code != 503) {
			c.log.ErrorContext(ctx, "LLM call failed with non-retriable error", "error", err)
			return nil, fmt.Errorf("llm call failed: %w", err)
		}

		if attempt == c.retry.MaxAttempts-1 {
			break
		}

		delay := c.retry.Delay(attempt)
		c.log.WarnContext(ctx, "LLM call failed, retrying",
			"attempt", attempt+1, "max_attempts", c.retry.MaxAttempts, "delay", delay, "code", apiErr.Code)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.log.ErrorContext(ctx, "LLM call failed after max attempts", "attempts", c.retry.MaxAttempts, "error", err)
	return nil, fmt.Errorf("llm call failed after %d attempts: %w", c.retry.MaxAttempts, err)
}

func (c *geminiClient) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "LLM request blocked", "reason", reason)
		return "", fmt.Errorf("llm request blocked by safety filter: %s", reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "LLM response missing content", "finish_reason", finishReason)
		return "", fmt.Errorf("llm returned no content (finish reason: %s)", finishReason)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("llm returned empty text")
	}
	return text, nil
}
