package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shahincodev/Sofware-AI-English/internal/config"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	BaseURL    string
	APIKey     string
	Profile    config.ProfileConfig
	HTTPClient *http.Client
	provider   string
}

// NewOpenAI builds a client for api.openai.com or a compatible server.
func NewOpenAI(_ context.Context, profile config.ProfileConfig, creds config.LLMConfig) (Client, error) {
	if err := requireKey("openai", creds.OpenAIAPIKey); err != nil {
		return nil, err
	}
	return &OpenAIClient{BaseURL: creds.OpenAIBaseURL, APIKey: creds.OpenAIAPIKey, Profile: profile, provider: "openai"}, nil
}

// NewGroq builds a client for Groq's OpenAI-compatible endpoint.
func NewGroq(_ context.Context, profile config.ProfileConfig, creds config.LLMConfig) (Client, error) {
	if err := requireKey("groq", creds.GroqAPIKey); err != nil {
		return nil, err
	}
	return &OpenAIClient{BaseURL: creds.GroqBaseURL, APIKey: creds.GroqAPIKey, Profile: profile, provider: "groq"}, nil
}

func (c *OpenAIClient) Name() string {
	p := c.provider
	if p == "" {
		p = "openai"
	}
	return p + "/" + c.Profile.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})
	body, err := json.Marshal(chatRequest{
		Model:       c.Profile.Model,
		Messages:    msgs,
		Temperature: c.Profile.Temperature,
		MaxTokens:   c.Profile.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	url := strings.TrimSuffix(c.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", c.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%s returned %d: %s", c.Name(), resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", c.Name(), err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%s: %s", c.Name(), out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in response", c.Name())
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
