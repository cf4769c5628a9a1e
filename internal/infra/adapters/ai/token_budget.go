package ai

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
)

// TokenBudget trims prompt material to a token count. When no encoding can
// be loaded it falls back to roughly four runes per token.
type TokenBudget struct {
	enc *tiktoken.Tiktoken
}

func NewTokenBudget(model string, logger *zerolog.Logger) *TokenBudget {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		logger.Warn().Err(err).Msg("tiktoken encoding unavailable, using rune approximation")
		return &TokenBudget{}
	}
	return &TokenBudget{enc: enc}
}

const runesPerToken = 4

// Count returns the token count of text.
func (b *TokenBudget) Count(text string) int {
	if b.enc == nil {
		return (len([]rune(text)) + runesPerToken - 1) / runesPerToken
	}
	return len(b.enc.Encode(text, nil, nil))
}

// Fit returns text cut to at most maxTokens tokens. maxTokens <= 0 disables
// the limit.
func (b *TokenBudget) Fit(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	if b.enc == nil {
		r := []rune(text)
		if len(r) <= maxTokens*runesPerToken {
			return text
		}
		return string(r[:maxTokens*runesPerToken])
	}
	toks := b.enc.Encode(text, nil, nil)
	if len(toks) <= maxTokens {
		return text
	}
	return b.enc.Decode(toks[:maxTokens])
}
