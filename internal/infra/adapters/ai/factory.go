package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"social-pipeline/internal/config"
	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/ports/adapter"
)

// New builds every provider the configuration has credentials for and
// routes between them, defaulting to cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (*MultiAIAdapter, error) {
	def := strings.ToLower(cfg.Provider)
	providers := map[string]adapter.AIServiceAdapter{}

	if cfg.OpenAIKey != "" {
		model := ""
		if def == "openai" {
			model = cfg.DefaultModel
		}
		oa, err := NewOpenAIAdapter(cfg.OpenAIKey, model, cfg.OpenAIBaseURL, cfg.MaxOutputTokens)
		if err != nil {
			return nil, err
		}
		providers["openai"] = oa
	}
	if cfg.GeminiKey != "" {
		model := ""
		if def == "gemini" {
			model = cfg.DefaultModel
		}
		ga, err := NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, model, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		providers["gemini"] = ga
	}
	if def == "ollama" || cfg.OllamaURL != "" {
		model := ""
		if def == "ollama" {
			model = cfg.DefaultModel
		}
		providers["ollama"] = NewOllamaAdapter(cfg.OllamaURL, model, cfg.Timeout)
	}
	if def == "noop" {
		providers["noop"] = NewNoopAIAdapter(logger)
	}

	if providers[def] == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, cfg.Provider)
	}
	m := NewMultiAIAdapter(def, providers, cfg.ModelProviders)
	logger.Info().Str("default", def).Strs("providers", m.Providers()).Msg("ai providers ready")
	return m, nil
}
