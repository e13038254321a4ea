package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. SOFTWARE_AI_CONCURRENCY.
const EnvPrefix = "SOFTWARE_AI"

var validate = validator.New()

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"concurrency": "concurrency",
	"mode":        "mode",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"addr":        "http.addr",
	"ltm-driver":  "ltm.driver",
	"ltm-dsn":     "ltm.dsn",
	"stm-ttl":     "memory.stm_ttl",
	"stub":        "agents.stub",
	"otel":        "http.otel",
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	Home string
	// ConfigFile overrides <home>/config.yaml.
	ConfigFile string
	// Flags, when set, are bound by name using flagKeys; only flags the user changed win over env and file.
	Flags *pflag.FlagSet
}

// Load reads defaults, the config file, SOFTWARE_AI_* environment variables and
// bound flags, in increasing priority, then validates the result. Every failure
// wraps models.ErrConfiguration.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	path := opts.ConfigFile
	if path == "" && opts.Home != "" {
		path = ConfigPath(opts.Home)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: read %s: %v", models.ErrConfiguration, path, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider credentials are also accepted under their conventional names.
	bindEnvs := []struct {
		key  string
		envs []string
	}{
		{"llm.anthropic_api_key", []string{EnvPrefix + "_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"}},
		{"llm.gemini_api_key", []string{EnvPrefix + "_LLM_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}},
		{"llm.openai_api_key", []string{EnvPrefix + "_LLM_OPENAI_API_KEY", "OPENAI_API_KEY"}},
		{"llm.openai_base_url", []string{EnvPrefix + "_LLM_OPENAI_BASE_URL", "OPENAI_BASE_URL"}},
		{"llm.groq_api_key", []string{EnvPrefix + "_LLM_GROQ_API_KEY", "GROQ_API_KEY"}},
		{"http.api_key", []string{EnvPrefix + "_HTTP_API_KEY", EnvPrefix + "_API_KEY"}},
	}
	for _, b := range bindEnvs {
		args := append([]string{b.key}, b.envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("%w: bind env %s: %v", models.ErrConfiguration, b.key, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("%w: bind flag --%s: %v", models.ErrConfiguration, name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", models.ErrConfiguration, err)
	}
	cfg.Home = opts.Home
	if cfg.Log.File == "" && opts.Home != "" {
		cfg.Log.File = filepath.Join(LogDir(opts.Home), "app.log")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	if c.Memory.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Memory.SweepSchedule); err != nil {
			return fmt.Errorf("%w: memory.sweep_schedule %q: %v", models.ErrConfiguration, c.Memory.SweepSchedule, err)
		}
	}
	switch {
	case c.LTM.Driver == "redis" && c.LTM.DSN == "":
		return fmt.Errorf("%w: ltm.dsn is required for driver redis", models.ErrConfiguration)
	case c.LTM.Driver == "postgres" && c.LTM.DSN == "" && os.Getenv("DATABASE_URL") == "":
		return fmt.Errorf("%w: ltm.dsn or DATABASE_URL is required for driver postgres", models.ErrConfiguration)
	}
	for purpose, profile := range c.LLM.Purposes {
		if _, ok := c.LLM.Profiles[profile]; !ok {
			return fmt.Errorf("%w: llm.purposes.%s refers to unknown profile %q", models.ErrConfiguration, purpose, profile)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", models.DefaultConcurrency)
	v.SetDefault("mode", string(models.ModeBrowser))

	v.SetDefault("memory.stm_ttl", "1h")
	v.SetDefault("memory.stm_max_entries", models.DefaultSTMMaxEntries)
	v.SetDefault("memory.sweep_schedule", "@every 1m")
	v.SetDefault("memory.promote_modes", []string{})

	v.SetDefault("ltm.driver", "sqlite")
	v.SetDefault("ltm.dsn", "")

	v.SetDefault("http.addr", fmt.Sprintf("127.0.0.1:%d", models.DefaultPort))
	v.SetDefault("http.api_key", "")
	v.SetDefault("http.otel", true)
	v.SetDefault("http.pprof_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("agents.stub", false)
	v.SetDefault("agents.timeout", "0s")
	v.SetDefault("agents.network_allowlist", []string{})
	v.SetDefault("agents.browser.command", "")
	v.SetDefault("agents.browser.sandbox", false)
	v.SetDefault("agents.code.command", "")
	v.SetDefault("agents.code.sandbox", false)

	v.SetDefault("llm.profiles", map[string]any{
		"reasoning": map[string]any{"provider": "gemini", "model": "gemini-2.5-flash", "temperature": 0.5},
		"browser":   map[string]any{"provider": "anthropic", "model": "claude-sonnet-4-5", "max_tokens": 4096},
		"fast":      map[string]any{"provider": "groq", "model": "llama-3.1-8b-instant", "temperature": 0.7},
		"normal":    map[string]any{"provider": "openai", "model": "gpt-4o-mini"},
	})
	v.SetDefault("llm.purposes", map[string]any{
		"analyze":  "reasoning",
		"browse":   "browser",
		"realtime": "fast",
		"default":  "normal",
	})
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "https://api.openai.com")
	v.SetDefault("llm.groq_api_key", "")
	v.SetDefault("llm.groq_base_url", "https://api.groq.com/openai")
}
