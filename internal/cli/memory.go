package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"github.com/shahincodev/Sofware-AI-English/internal/core"
	"github.com/shahincodev/Sofware-AI-English/internal/daemon"
	"github.com/shahincodev/Sofware-AI-English/internal/store"
	"github.com/shahincodev/Sofware-AI-English/pkg/client"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
	"github.com/spf13/cobra"
)

// errNeedsServer is returned by commands that act on short-term memory, which
// only exists inside a running server.
var errNeedsServer = errors.New("software-ai is not running; short-term memory lives in the server (start it with `software-ai serve`)")

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage task memory",
		Long: `Inspect and manage task memory. When the server is running these commands
go through its API and see both tiers; otherwise they read long-term memory
directly.`,
	}
	cmd.AddCommand(newMemoryRecallCmd())
	cmd.AddCommand(newMemoryPromoteCmd())
	cmd.AddCommand(newMemoryListCmd())
	cmd.AddCommand(newMemorySweepCmd())
	return cmd
}

// serverClient returns an API client for the running server, if any.
func serverClient(cmd *cobra.Command, cfg *config.Config) (*client.Client, bool) {
	st, err := daemon.Status(cmd.Context(), config.MustHomeFrom(cmd.Context()))
	if err != nil || !st.Running || st.Addr == "" || st.Addr == "unknown" {
		return nil, false
	}
	return client.New("http://"+st.Addr, cfg.HTTP.APIKey), true
}

func newMemoryRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall <task-id>",
		Short: "Show the remembered outcome of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			id := args[0]
			var rec models.RecallResponse
			if c, ok := serverClient(cmd, cfg); ok {
				got, err := c.Recall(cmd.Context(), id)
				if errors.Is(err, client.ErrNotFound) {
					return fmt.Errorf("task %s not in memory", id)
				}
				if err != nil {
					return err
				}
				rec = *got
			} else {
				st, err := core.OpenStore(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
				got, err := st.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if got == nil {
					return fmt.Errorf("task %s not in long-term memory", id)
				}
				rec = models.RecallResponse{Tier: models.TierLongTerm, Outcome: got.Outcome}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
	return cmd
}

func newMemoryPromoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote <task-id>",
		Short: "Copy a task's short-term outcome into long-term memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, ok := serverClient(cmd, cfg)
			if !ok {
				return errNeedsServer
			}
			promoted, err := c.Promote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !promoted {
				return fmt.Errorf("task %s not in memory", args[0])
			}
			printf(cmd.OutOrStdout(), "Promoted %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func newMemoryListCmd() *cobra.Command {
	var (
		mode  string
		since string
		until string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List long-term memory records in promotion order",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The filter flags must not be bound as config keys.
			cfg, err := loadConfigFlags(cmd, cmd.InheritedFlags())
			if err != nil {
				return err
			}
			f := store.Filter{Limit: limit}
			if mode != "" {
				if f.Mode, err = models.ParseMode(mode); err != nil {
					return err
				}
			}
			if f.Since, err = parseTimeFlag("since", since); err != nil {
				return err
			}
			if f.Until, err = parseTimeFlag("until", until); err != nil {
				return err
			}

			var recs []models.MemoryRecord
			if c, ok := serverClient(cmd, cfg); ok {
				recs, err = c.Query(cmd.Context(), client.QueryOptions{Mode: f.Mode, Since: f.Since, Until: f.Until, Limit: f.Limit})
				if err != nil {
					return err
				}
			} else {
				st, err := core.OpenStore(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
				for rec, err := range st.Query(cmd.Context(), f) {
					if err != nil {
						return err
					}
					recs = append(recs, rec)
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(tw, "TASK ID\tMODE\tSTATUS\tPROMOTED AT\tTEXT\n")
			for _, r := range recs {
				printf(tw, "%s\t%s\t%s\t%s\t%s\n", r.TaskID, r.Mode, r.Status,
					r.PromotedAt.UTC().Format(time.RFC3339), truncate(oneLine(r.Text), 60))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Only records of this mode")
	cmd.Flags().StringVar(&since, "since", "", "Only records promoted at or after this RFC3339 time")
	cmd.Flags().StringVar(&until, "until", "", "Only records promoted before this RFC3339 time")
	cmd.Flags().IntVar(&limit, "limit", models.DefaultQueryLimit, "Maximum records (0 = no limit)")
	return cmd
}

func newMemorySweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Drop expired short-term entries in the running server now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, ok := serverClient(cmd, cfg)
			if !ok {
				return errNeedsServer
			}
			n, err := c.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Removed %d expired entries\n", n)
			return nil
		},
	}
	return cmd
}

func parseTimeFlag(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
