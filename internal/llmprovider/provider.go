// Package llmprovider abstracts the chat-completion backends the
// planner and extraction primitive call through: Anthropic and OpenAI
// today, with a Failover wrapper composing several. Grounded on
// internal/agent/provider_types.go's Provider interface and
// internal/agent/failover.go's retry-across-providers wrapper.
package llmprovider

import "context"

// Message is one turn of a chat completion request.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Request is a single completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider to constrain output to a JSON object,
	// used by qllm's extraction calls where supported.
	JSONMode bool
}

// Usage reports token accounting for telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is a single completion result.
type Response struct {
	Text  string
	Usage Usage
}

// Provider completes chat requests against one backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}
