package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"social-pipeline/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*OllamaAdapter)(nil)

// OllamaAdapter calls a local Ollama server's /api/generate endpoint.
type OllamaAdapter struct {
	base   string
	model  string
	client *http.Client
}

func NewOllamaAdapter(base, model string, timeout time.Duration) *OllamaAdapter {
	if base == "" {
		base = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaAdapter{base: strings.TrimRight(base, "/"), model: model, client: &http.Client{Timeout: timeout}}
}

func (o *OllamaAdapter) Name() string { return "ollama" }

// ChatWithUsage flattens the conversation into one prompt; /api/generate
// has no roles.
func (o *OllamaAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("ollama: no messages")
	}
	var system []string
	var prompt strings.Builder
	for _, m := range messages {
		if strings.EqualFold(m.Role, "system") {
			system = append(system, m.Content)
			continue
		}
		if prompt.Len() > 0 {
			prompt.WriteString("\n\n")
		}
		prompt.WriteString(m.Content)
	}
	reqBody := struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
		System string `json:"system,omitempty"`
		Stream bool   `json:"stream"`
	}{Model: modelOrDefault(model, o.model), Prompt: prompt.String(), System: strings.Join(system, "\n\n")}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", adapter.Usage{}, fmt.Errorf("ollama http %d", resp.StatusCode)
	}
	var payload struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", adapter.Usage{}, err
	}
	u := adapter.Usage{
		PromptTokens:     payload.PromptEvalCount,
		CompletionTokens: payload.EvalCount,
		TotalTokens:      payload.PromptEvalCount + payload.EvalCount,
	}
	return payload.Response, u, nil
}
