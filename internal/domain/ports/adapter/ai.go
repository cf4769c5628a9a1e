package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIServiceAdapter is the port for one LLM provider.
type AIServiceAdapter interface {
	Name() string

	// ChatWithUsage returns assistant text + usage as reported by the provider.
	ChatWithUsage(ctx context.Context, model string, messages []Message) (string, Usage, error)
}

// TextGenerator is the single-prompt view the pipeline uses.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
