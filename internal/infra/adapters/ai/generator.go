package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"social-pipeline/internal/domain/ports/adapter"
	"social-pipeline/internal/infra/metrics"
)

var _ adapter.TextGenerator = (*Generator)(nil)

// Generator turns a single prompt into one completion on the configured
// provider and records latency and token usage for every call.
type Generator struct {
	ai    adapter.AIServiceAdapter
	model string
	now   func() time.Time
	log   *zerolog.Logger
}

func NewGenerator(ai adapter.AIServiceAdapter, model string, logger *zerolog.Logger) *Generator {
	l := logger.With().Str("component", "Generator").Str("provider", ai.Name()).Logger()
	return &Generator{ai: ai, model: model, now: time.Now, log: &l}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("empty prompt")
	}
	start := g.now()
	out, usage, err := g.ai.ChatWithUsage(ctx, g.model, []adapter.Message{{Role: "user", Content: prompt}})
	latency := g.now().Sub(start)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty completion")
	}
	metrics.ObserveLLMCall(g.ai.Name(), g.model, usage.PromptTokens, usage.CompletionTokens, latency, err == nil)
	if err != nil {
		g.log.Error().Err(err).Dur("latency", latency).Msg("completion failed")
		return "", err
	}
	g.log.Debug().
		Int("tokens_in", usage.PromptTokens).
		Int("tokens_out", usage.CompletionTokens).
		Dur("latency", latency).
		Msg("completion done")
	return strings.TrimSpace(out), nil
}
