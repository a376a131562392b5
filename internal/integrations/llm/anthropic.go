package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"supportbot/internal/httpx"
)

type anthropicBackend struct {
	client anthropic.Client
	model  string
}

func newAnthropicBackend(apiKey, model string, extra ...option.RequestOption) *anthropicBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.Client()),
		option.WithMaxRetries(0),
	}
	opts = append(opts, extra...)
	return &anthropicBackend{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (b *anthropicBackend) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	message, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in anthropic response")
}
