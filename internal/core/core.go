// Package core assembles the engine, memory tiers and agents from configuration.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shahincodev/Sofware-AI-English/internal/agent"
	"github.com/shahincodev/Sofware-AI-English/internal/brain"
	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"github.com/shahincodev/Sofware-AI-English/internal/engine"
	"github.com/shahincodev/Sofware-AI-English/internal/memory"
	"github.com/shahincodev/Sofware-AI-English/internal/store"
	"github.com/shahincodev/Sofware-AI-English/internal/store/postgres"
	"github.com/shahincodev/Sofware-AI-English/internal/store/redisstore"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// App is a fully wired engine with its memory and agents.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Memory *memory.Manager
	Router *agent.Router
	Brain  *brain.Selector
	Engine *engine.Engine
}

// Option adjusts Open.
type Option func(*options)

type options struct {
	events func(models.Event)
	clock  memory.Clock
	store  store.Store
}

// WithEvents forwards engine events to fn.
func WithEvents(fn func(models.Event)) Option {
	return func(o *options) { o.events = fn }
}

// WithClock overrides the clock used by memory and the engine.
func WithClock(c memory.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStore uses st for long-term memory instead of opening cfg.LTM.
func WithStore(st store.Store) Option {
	return func(o *options) { o.store = st }
}

// Open builds an App from cfg. Close releases it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", models.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := options{clock: memory.SystemClock{}}
	for _, fn := range opts {
		fn(&o)
	}

	st := o.store
	if st == nil {
		var err error
		if st, err = OpenStore(ctx, cfg); err != nil {
			return nil, err
		}
	}
	stm, err := memory.NewShortTerm(memory.STMConfig{
		TTL:        cfg.Memory.STMTTL,
		MaxEntries: cfg.Memory.STMMaxEntries,
		Clock:      o.clock,
		Logger:     logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	mgr := memory.NewManager(stm, st,
		memory.WithPolicy(PromotionPolicy(cfg.Memory)),
		memory.WithClock(o.clock),
		memory.WithLogger(logger))

	sel := brain.NewSelector(cfg.LLM, brain.WithLogger(logger))
	router := BuildRouter(cfg, sel, logger)
	eng := engine.New(router, mgr,
		engine.WithConcurrency(cfg.Concurrency),
		engine.WithTimeout(cfg.Agents.Timeout),
		engine.WithClock(o.clock),
		engine.WithLogger(logger),
		engine.WithEvents(o.events))

	logger.Debug("engine ready", "concurrency", eng.Concurrency(), "modes", router.Modes(), "ltm", cfg.LTM.Driver)
	return &App{
		Config: cfg,
		Logger: logger,
		Memory: mgr,
		Router: router,
		Brain:  sel,
		Engine: eng,
	}, nil
}

// Close drains the engine, then closes long-term memory.
func (a *App) Close(ctx context.Context) error {
	err := a.Engine.Shutdown(ctx)
	return errors.Join(err, a.Memory.Close())
}

// OpenStore opens the long-term store selected by cfg.LTM.Driver.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.LTM.Driver {
	case "postgres":
		st, err := postgres.Open(ctx, cfg.LTM.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "redis":
		st, err := redisstore.Open(ctx, cfg.LTM.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "", "sqlite":
		return store.OpenWithOptions(ctx, store.OpenOptions{Home: cfg.Home, DSN: cfg.LTM.DSN})
	default:
		return nil, fmt.Errorf("%w: unknown ltm driver %q", models.ErrConfiguration, cfg.LTM.Driver)
	}
}

// PromotionPolicy promotes successful outcomes, restricted to promote_modes when set.
func PromotionPolicy(mc config.MemoryConfig) memory.Policy {
	modes := make([]models.Mode, 0, len(mc.PromoteModes))
	for _, m := range mc.PromoteModes {
		modes = append(modes, models.Mode(m))
	}
	return memory.AllOf(memory.DefaultPolicy, memory.ModesPolicy(modes...))
}

// BuildRouter registers an agent per mode. A configured runner command wins,
// then the stub agent when enabled. Browser mode otherwise falls back to the
// model-backed agent; code mode stays unregistered.
func BuildRouter(cfg *config.Config, sel agent.Selector, logger *slog.Logger) *agent.Router {
	r := agent.NewRouter()
	for _, mode := range []models.Mode{models.ModeBrowser, models.ModeCode} {
		sub := cfg.Agents.Browser
		if mode == models.ModeCode {
			sub = cfg.Agents.Code
		}
		switch {
		case sub.Command != "":
			a := agent.SubprocessAgent{
				Command:          sub.Command,
				Args:             sub.Args,
				NetworkAllowlist: cfg.Agents.NetworkAllowlist,
				Guard:            mode == models.ModeCode,
				Logger:           logger,
			}
			if sub.Sandbox {
				a.SandboxRoot = cfg.Home
				a.WorkDir = WorkDir(cfg.Home, mode)
				if err := os.MkdirAll(a.WorkDir, 0o755); err != nil {
					logger.Warn("cannot create runner work dir", "dir", a.WorkDir, "err", err)
				}
			}
			r.Register(mode, a)
		case cfg.Agents.Stub:
			r.Register(mode, agent.NewStubAgent())
		case mode == models.ModeBrowser:
			r.Register(mode, agent.LLMAgent{Brain: sel})
		}
	}
	return r
}

// WorkDir is the writable directory given to a sandboxed runner for mode.
func WorkDir(home string, mode models.Mode) string {
	return filepath.Join(home, "work", mode.String())
}
