// Package cli implements the software-ai command line.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"github.com/shahincodev/Sofware-AI-English/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func NewRootCmd(version string) *cobra.Command {
	var (
		homeOverride string
		envFile      string
	)

	cmd := &cobra.Command{
		Use:          "software-ai",
		Short:        "software-ai: run browser and code tasks with short- and long-term memory",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := loadEnvFile(envFile); err != nil {
					return err
				}
			}
			home, err := config.ResolveHome(homeOverride)
			if err != nil {
				return err
			}
			cmd.SetContext(config.WithHome(cmd.Context(), home))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&homeOverride, "home", "", "Override home directory (default: ~/.software-ai, env: "+config.HomeEnv+")")
	pf.StringVar(&envFile, "env-file", "", "Load env vars from file (KEY=VALUE per line) before reading config")
	pf.Bool("debug", false, "Log at debug level")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newMemoryCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}

// loadConfig reads the configuration for cmd, with cmd's changed flags taking priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return loadConfigFlags(cmd, cmd.Flags())
}

func loadConfigFlags(cmd *cobra.Command, fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		Home:  config.MustHomeFrom(cmd.Context()),
		Flags: fs,
	})
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// setupLogger installs the configured logger; call the returned func when done.
func setupLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, func(), error) {
	logger, closer, err := logging.Setup(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = closer.Close() }, nil
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
		if key != "" {
			_ = os.Setenv(key, value)
		}
	}
	return sc.Err()
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
