package cli

import (
	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"github.com/shahincodev/Sofware-AI-English/internal/daemon"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the software-ai server is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			st, err := daemon.Status(cmd.Context(), home)
			if err != nil {
				return err
			}
			if !st.Running {
				printf(cmd.OutOrStdout(), "software-ai not running\n")
				return nil
			}
			printf(cmd.OutOrStdout(), "software-ai running (pid %d, addr %s)\n", st.PID, st.Addr)
			return nil
		},
	}
	return cmd
}
