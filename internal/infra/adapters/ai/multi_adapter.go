// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]adapter.AIServiceAdapter
	modelToProvider map[string]string // model -> provider
}

// NewMultiAIAdapter does not inject any default model; it only knows a default provider.
// Each provider adapter is responsible for its own default model.
func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.AIServiceAdapter,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAIAdapter) Name() string { return "multi:" + m.defaultProvider }

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return "openai"
	case strings.HasPrefix(l, "llama"), strings.HasPrefix(l, "mistral"), strings.HasPrefix(l, "qwen"):
		return "ollama"
	default:
		return m.defaultProvider
	}
}

// Providers lists the configured provider names.
func (m *MultiAIAdapter) Providers() []string {
	out := make([]string, 0, len(m.byProvider))
	for name, a := range m.byProvider {
		if a != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (m *MultiAIAdapter) pick(model string) adapter.AIServiceAdapter {
	prov := m.resolveProvider(model)
	if a := m.byProvider[prov]; a != nil {
		return a
	}
	if a := m.byProvider[m.defaultProvider]; a != nil {
		return a
	}
	// last resort: first available, in a stable order
	for _, name := range m.Providers() {
		return m.byProvider[name]
	}
	return nil
}

func (m *MultiAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	a := m.pick(model)
	if a == nil {
		return "", adapter.Usage{}, fmt.Errorf("%w: no provider configured", domain.ErrUnknownProvider)
	}
	return a.ChatWithUsage(ctx, model, messages)
}
