package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"google.golang.org/genai"
)

type geminiClient struct {
	client  *genai.Client
	profile config.ProfileConfig
}

// NewGemini builds a Gemini API client for profile.
func NewGemini(ctx context.Context, profile config.ProfileConfig, creds config.LLMConfig) (Client, error) {
	if err := requireKey("gemini", creds.GeminiAPIKey); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  creds.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiClient{client: client, profile: profile}, nil
}

func (c *geminiClient) Name() string { return "gemini/" + c.profile.Model }

func (c *geminiClient) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.profile.Temperature)),
	}
	if c.profile.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.profile.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.profile.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	switch {
	case resp == nil || len(resp.Candidates) == 0:
		return "", errors.New("gemini: no content generated")
	case resp.Candidates[0].Content == nil:
		return "", errors.New("gemini: empty content in response")
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return "", errors.New("gemini: content blocked by safety filters")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
