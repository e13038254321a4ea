package config

import "time"

// Config holds all application configuration, grouped by concern.
type Config struct {
	Home        string        `mapstructure:"-" yaml:"home"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency" validate:"gte=1"`
	Mode        string        `mapstructure:"mode" yaml:"mode" validate:"oneof=browser code"`
	Memory      MemoryConfig  `mapstructure:"memory" yaml:"memory"`
	LTM         LTMConfig     `mapstructure:"ltm" yaml:"ltm"`
	HTTP        HTTPConfig    `mapstructure:"http" yaml:"http"`
	Log         LogConfig     `mapstructure:"log" yaml:"log"`
	Agents      AgentsConfig  `mapstructure:"agents" yaml:"agents"`
	LLM         LLMConfig     `mapstructure:"llm" yaml:"llm"`
}

// MemoryConfig controls the short-term tier and promotion.
type MemoryConfig struct {
	STMTTL        time.Duration `mapstructure:"stm_ttl" yaml:"stm_ttl" validate:"gt=0"`
	STMMaxEntries int           `mapstructure:"stm_max_entries" yaml:"stm_max_entries" validate:"gte=1"`
	// SweepSchedule is a cron spec for the active STM sweep; empty disables it.
	SweepSchedule string   `mapstructure:"sweep_schedule" yaml:"sweep_schedule"`
	PromoteModes  []string `mapstructure:"promote_modes" yaml:"promote_modes,omitempty" validate:"dive,oneof=browser code"`
}

// LTMConfig selects the long-term store.
type LTMConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite postgres redis"`
	DSN    string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// HTTPConfig configures the API served by `software-ai serve`.
type HTTPConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr" validate:"required,hostname_port"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Otel      bool   `mapstructure:"otel" yaml:"otel"`
	PprofAddr string `mapstructure:"pprof_addr" yaml:"pprof_addr,omitempty"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// AgentsConfig configures the agents registered with the router.
type AgentsConfig struct {
	// Stub registers the local stub agent for every mode without a real agent.
	Stub             bool             `mapstructure:"stub" yaml:"stub"`
	Timeout          time.Duration    `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	NetworkAllowlist []string         `mapstructure:"network_allowlist" yaml:"network_allowlist,omitempty"`
	Browser          SubprocessConfig `mapstructure:"browser" yaml:"browser"`
	Code             SubprocessConfig `mapstructure:"code" yaml:"code"`
}

// SubprocessConfig runs an external agent binary for a mode. When Command is
// empty the mode falls back to the LLM agent.
type SubprocessConfig struct {
	Command string   `mapstructure:"command" yaml:"command,omitempty"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty"`
	Sandbox bool     `mapstructure:"sandbox" yaml:"sandbox"`
}

// LLMConfig configures model profiles and provider credentials.
type LLMConfig struct {
	Profiles        map[string]ProfileConfig `mapstructure:"profiles" yaml:"profiles" validate:"dive"`
	Purposes        map[string]string        `mapstructure:"purposes" yaml:"purposes"`
	AnthropicAPIKey string                   `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key,omitempty"`
	GeminiAPIKey    string                   `mapstructure:"gemini_api_key" yaml:"gemini_api_key,omitempty"`
	OpenAIAPIKey    string                   `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL   string                   `mapstructure:"openai_base_url" yaml:"openai_base_url" validate:"omitempty,url"`
	GroqAPIKey      string                   `mapstructure:"groq_api_key" yaml:"groq_api_key,omitempty"`
	GroqBaseURL     string                   `mapstructure:"groq_base_url" yaml:"groq_base_url" validate:"omitempty,url"`
}

// ProfileConfig is one named model setting (e.g. "reasoning").
type ProfileConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider" validate:"oneof=anthropic gemini openai groq"`
	Model       string  `mapstructure:"model" yaml:"model" validate:"required"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
}

const redacted = "<redacted>"

// Redacted returns a copy of c with secrets masked, suitable for printing.
func (c Config) Redacted() Config {
	out := c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	out.HTTP.APIKey = mask(c.HTTP.APIKey)
	out.LLM.AnthropicAPIKey = mask(c.LLM.AnthropicAPIKey)
	out.LLM.GeminiAPIKey = mask(c.LLM.GeminiAPIKey)
	out.LLM.OpenAIAPIKey = mask(c.LLM.OpenAIAPIKey)
	out.LLM.GroqAPIKey = mask(c.LLM.GroqAPIKey)
	if c.LTM.DSN != "" && c.LTM.Driver != "sqlite" {
		out.LTM.DSN = redacted
	}
	return out
}
