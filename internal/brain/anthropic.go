package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/shahincodev/Sofware-AI-English/internal/config"
)

const defaultAnthropicMaxTokens = 4096

type anthropicClient struct {
	client  anthropic.Client
	profile config.ProfileConfig
}

// NewAnthropic builds a Claude client for profile.
func NewAnthropic(_ context.Context, profile config.ProfileConfig, creds config.LLMConfig) (Client, error) {
	if err := requireKey("anthropic", creds.AnthropicAPIKey); err != nil {
		return nil, err
	}
	return &anthropicClient{
		client:  anthropic.NewClient(option.WithAPIKey(creds.AnthropicAPIKey)),
		profile: profile,
	}, nil
}

func (c *anthropicClient) Name() string { return "anthropic/" + c.profile.Model }

func (c *anthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := int64(c.profile.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.profile.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if c.profile.Temperature > 0 {
		params.Temperature = anthropic.Float(c.profile.Temperature)
	}
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
