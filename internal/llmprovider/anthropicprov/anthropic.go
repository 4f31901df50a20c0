// Package anthropicprov wraps the Anthropic Messages API as an
// llmprovider.Provider. Grounded on internal/agent's anthropic backend
// (provider_types.go's Provider contract) and the anthropic-sdk-go
// client idiom of constructing one client per process and passing
// context through every call.
package anthropicprov

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/openclaw/camel/internal/llmprovider"
)

// Provider calls the Anthropic API.
type Provider struct {
	client anthropic.Client
	model  string
}

// New builds a Provider. apiKey is forwarded to the SDK client via
// option.WithAPIKey; defaultModel is used when a Request leaves Model
// empty.
func New(apiKey, defaultModel string) *Provider {
	return &Provider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
}

func (p *Provider) Name() string { return "anthropic" }

// Complete issues one Messages API call, translating llmprovider's
// provider-agnostic Request/Response into the SDK's types. A leading
// "system" message, if present, is passed as the System parameter
// rather than as a conversation turn, matching the Messages API shape.
func (p *Provider) Complete(ctx context.Context, req llmprovider.Request) (llmprovider.Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var system string
	var turns []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return llmprovider.Response{}, fmt.Errorf("anthropic: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return llmprovider.Response{
		Text: text,
		Usage: llmprovider.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}
