package cli

import (
	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"github.com/shahincodev/Sofware-AI-English/internal/daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newServeCmd() *cobra.Command {
	var detach bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run submitted tasks until interrupted",
		Long: `Serve the HTTP API in the foreground. On SIGINT or SIGTERM it stops accepting
tasks, waits for admitted ones to be recorded and exits. With --detach the
server runs in the background and logs to <home>/logs/daemon.log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			if detach {
				pid, err := daemon.StartBackground(cmd.Context(), home, forwardedFlags(cmd.Flags()))
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "software-ai started (pid %d)\n", pid)
				printf(cmd.OutOrStdout(), "logs: %s\n", daemon.LogPath(home))
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closeLog, err := setupLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			return daemon.Serve(cmd.Context(), daemon.ServeOptions{
				Config: cfg,
				Logger: logger,
				Ready: func(addr string) {
					printf(cmd.OutOrStdout(), "software-ai listening on http://%s\n", addr)
				},
			})
		},
	}

	cmd.Flags().BoolVar(&detach, "detach", false, "Run in the background")
	cmd.Flags().String("addr", "127.0.0.1:3548", "HTTP listen address")
	cmd.Flags().Int("concurrency", 1, "Maximum tasks executing at once")
	cmd.Flags().String("mode", "browser", "Default mode for submissions without one")
	cmd.Flags().Bool("stub", false, "Use the local stub agent for modes without a configured runner")
	cmd.Flags().Bool("otel", true, "Serve OpenTelemetry metrics on /metrics")
	cmd.Flags().String("ltm-driver", "sqlite", "Long-term store: sqlite, postgres or redis")
	cmd.Flags().String("ltm-dsn", "", "Long-term store DSN")
	cmd.Flags().String("stm-ttl", "1h", "How long outcomes stay in short-term memory")

	return cmd
}

// forwardedFlags re-encodes the flags the user set so a detached child sees the same settings.
func forwardedFlags(fs *pflag.FlagSet) []string {
	var args []string
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "detach", "home":
			return
		}
		args = append(args, "--"+f.Name+"="+f.Value.String())
	})
	return args
}
