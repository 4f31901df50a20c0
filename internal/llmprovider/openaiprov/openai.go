// Package openaiprov wraps the OpenAI chat-completions API as an
// llmprovider.Provider using github.com/sashabaranov/go-openai.
// Grounded on internal/agent's provider abstraction, generalized to a
// second concrete backend behind the same interface the Anthropic
// wrapper implements.
package openaiprov

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/openclaw/camel/internal/llmprovider"
)

// Provider calls the OpenAI chat completions API.
type Provider struct {
	client *openai.Client
	model  string
}

// New builds a Provider against the default OpenAI base URL.
func New(apiKey, defaultModel string) *Provider {
	return &Provider{client: openai.NewClient(apiKey), model: defaultModel}
}

func (p *Provider) Name() string { return "openai" }

// Complete issues one chat completion call, optionally requesting JSON
// mode for qllm extraction calls.
func (p *Provider) Complete(ctx context.Context, req llmprovider.Request) (llmprovider.Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	creq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if req.Temperature > 0 {
		creq.Temperature = float32(req.Temperature)
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = req.MaxTokens
	}
	if req.JSONMode {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return llmprovider.Response{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llmprovider.Response{}, fmt.Errorf("openai: empty response")
	}
	return llmprovider.Response{
		Text: resp.Choices[0].Message.Content,
		Usage: llmprovider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
