package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// HomeEnv names the environment variable that overrides the home directory.
const HomeEnv = "SOFTWARE_AI_HOME"

type homeKey struct{}

// WithHome stores the software-ai home path in the context.
func WithHome(ctx context.Context, home string) context.Context {
	return context.WithValue(ctx, homeKey{}, home)
}

// HomeFrom returns the software-ai home path from the context, if set.
func HomeFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(homeKey{})
	s, ok := v.(string)
	return s, ok
}

// MustHomeFrom returns the home path from the context, or panics if not set.
func MustHomeFrom(ctx context.Context) string {
	if h, ok := HomeFrom(ctx); ok && h != "" {
		return h
	}
	panic("software-ai home missing from context")
}

// ResolveHome returns the home directory (override, SOFTWARE_AI_HOME, or default ~/.software-ai).
func ResolveHome(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}
	if env := os.Getenv(HomeEnv); env != "" {
		return filepath.Clean(env), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine user home directory")
	}
	return filepath.Join(home, ".software-ai"), nil
}

// ConfigPath returns <home>/config.yaml.
func ConfigPath(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DataDir returns <home>/data, where the default long-term store lives.
func DataDir(home string) string {
	return filepath.Join(home, "data")
}

// LogDir returns <home>/logs.
func LogDir(home string) string {
	return filepath.Join(home, "logs")
}

// RunDir returns <home>/run, which holds the daemon pid, lock and addr files.
func RunDir(home string) string {
	return filepath.Join(home, "run")
}
