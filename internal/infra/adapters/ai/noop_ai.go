package ai

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"social-pipeline/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter answers with canned text for dry runs. Tweet prompts get a
// JSON array so the rest of the pipeline runs unchanged.
type NoopAIAdapter struct {
	log *zerolog.Logger
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	l := logger.With().Str("component", "NoopAI").Logger()
	return &NoopAIAdapter{log: &l}
}

func (a *NoopAIAdapter) Name() string { return "noop" }

const noopTweets = `[
  {"text": "A quick look at what this article gets right.", "hashtags": ["dev", "news"]},
  {"text": "One idea from this piece worth stealing for your next project.", "hashtags": ["engineering"]},
  {"text": "Short read, long shelf life. Bookmark this one.", "hashtags": ["reading"]}
]`

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if err := ctx.Err(); err != nil {
		return "", adapter.Usage{}, err
	}
	prompt := ""
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	a.log.Debug().Int("prompt_chars", len(prompt)).Msg("noop completion")
	reply := "This is a noop AI response."
	if strings.Contains(prompt, "JSON array") {
		reply = noopTweets
	}
	return reply, adapter.Usage{PromptTokens: len(prompt) / 4, CompletionTokens: len(reply) / 4, TotalTokens: (len(prompt) + len(reply)) / 4}, nil
}
