package debate

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tas-rag-core/models"
)

const defaultMaxTokens = 2048

// AnthropicClient adapts anthropic-sdk-go to the LLMClient interface used by
// the debate engine and the orchestrator's compose step.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicClient(apiKey string, model anthropic.Model) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete issues a single-turn message call and returns the concatenated
// text of the response's content blocks.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt))},
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", models.NewUpstreamError("anthropic completion failed", err)
	}

	var out string
	for _, block := range msg.Content {
		if block.Text != "" {
			out += block.Text
		}
	}
	return out, nil
}
