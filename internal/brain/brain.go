// Package brain selects a language-model client by purpose. Clients are built
// on first use and cached per profile so startup stays cheap.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// Purposes understood by the default configuration.
const (
	PurposeAnalyze  = "analyze"
	PurposeBrowse   = "browse"
	PurposeRealtime = "realtime"
	PurposeDefault  = "default"
)

const fallbackProfile = "normal"

// Request is one completion call.
type Request struct {
	System string
	Prompt string
}

// Client completes prompts against one model.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Factory builds a client for a profile. creds carries provider keys and base URLs.
type Factory func(ctx context.Context, profile config.ProfileConfig, creds config.LLMConfig) (Client, error)

// Selector maps purposes to profiles and profiles to lazily created clients.
type Selector struct {
	cfg       config.LLMConfig
	factories map[string]Factory
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[string]Client
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithFactory registers or replaces the factory for provider.
func WithFactory(provider string, f Factory) SelectorOption {
	return func(s *Selector) { s.factories[provider] = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SelectorOption {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSelector returns a Selector with the anthropic, gemini, openai and groq providers.
func NewSelector(cfg config.LLMConfig, opts ...SelectorOption) *Selector {
	s := &Selector{
		cfg: cfg,
		factories: map[string]Factory{
			"anthropic": NewAnthropic,
			"gemini":    NewGemini,
			"openai":    NewOpenAI,
			"groq":      NewGroq,
		},
		logger:  slog.Default(),
		clients: make(map[string]Client),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ProfileFor resolves purpose to a profile name. Unknown purposes use the
// "default" purpose, then the "normal" profile.
func (s *Selector) ProfileFor(purpose string) string {
	if p, ok := s.cfg.Purposes[purpose]; ok && p != "" {
		return p
	}
	if p, ok := s.cfg.Purposes[PurposeDefault]; ok && p != "" {
		return p
	}
	return fallbackProfile
}

// ForPurpose returns the client for purpose, creating it on first use.
func (s *Selector) ForPurpose(ctx context.Context, purpose string) (Client, error) {
	name := s.ProfileFor(purpose)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[name]; ok {
		return c, nil
	}
	profile, ok := s.cfg.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown llm profile %q", models.ErrConfiguration, name)
	}
	factory, ok := s.factories[profile.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown llm provider %q", models.ErrConfiguration, profile.Provider)
	}
	c, err := factory(ctx, profile, s.cfg)
	if err != nil {
		s.logger.Error("failed to load model", "profile", name, "provider", profile.Provider, "err", err)
		return nil, err
	}
	s.logger.Info("loaded model", "profile", name, "provider", profile.Provider, "model", profile.Model)
	s.clients[name] = c
	return c, nil
}

// Profiles lists configured profile names, sorted.
func (s *Selector) Profiles() []string {
	out := make([]string, 0, len(s.cfg.Profiles))
	for name := range s.cfg.Profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func requireKey(provider, key string) error {
	if key == "" {
		return fmt.Errorf("%w: %s api key not set", models.ErrConfiguration, provider)
	}
	return nil
}
