package cli

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/shahincodev/Sofware-AI-English/internal/agent"
	"github.com/shahincodev/Sofware-AI-English/internal/brain"
	"github.com/shahincodev/Sofware-AI-English/internal/core"
	"github.com/shahincodev/Sofware-AI-English/internal/logging"
	"github.com/shahincodev/Sofware-AI-English/internal/sandbox"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, long-term storage and agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			printf(out, "config: ok (home %s)\n", cfg.Home)

			var problems []string

			st, err := core.OpenStore(cmd.Context(), cfg)
			if err == nil {
				err = st.Ping(cmd.Context())
				_ = st.Close()
			}
			if err != nil {
				problems = append(problems, fmt.Sprintf("ltm (%s): %v", cfg.LTM.Driver, err))
			} else {
				printf(out, "ltm: ok (%s)\n", cfg.LTM.Driver)
			}

			sel := brain.NewSelector(cfg.LLM, brain.WithLogger(logging.Discard()))
			router := core.BuildRouter(cfg, sel, logging.Discard())
			for _, mode := range []models.Mode{models.ModeBrowser, models.ModeCode} {
				if p := checkMode(cmd, sel, router, mode); p != "" {
					problems = append(problems, p)
				}
			}

			if len(problems) > 0 {
				for _, p := range problems {
					printf(cmd.ErrOrStderr(), "%s\n", p)
				}
				return errors.New("doctor checks failed")
			}
			printf(out, "ok\n")
			return nil
		},
	}
	return cmd
}

// checkMode reports a problem with the agent registered for mode, or "".
func checkMode(cmd *cobra.Command, sel *brain.Selector, router *agent.Router, mode models.Mode) string {
	out := cmd.OutOrStdout()
	a, ok := router.Resolve(mode)
	if !ok {
		printf(out, "agent %s: none (tasks fail with %s)\n", mode, models.KindUnsupportedMode)
		return ""
	}
	switch a := a.(type) {
	case agent.SubprocessAgent:
		if _, err := exec.LookPath(a.Command); err != nil {
			return fmt.Sprintf("agent %s: runner %q not found: %v", mode, a.Command, err)
		}
		if a.SandboxRoot != "" && !sandbox.Available() {
			return fmt.Sprintf("agent %s: sandbox requested but bubblewrap (bwrap) is not available", mode)
		}
	case agent.LLMAgent:
		purpose := agent.PurposeFor(mode)
		if _, err := sel.ForPurpose(cmd.Context(), purpose); err != nil {
			return fmt.Sprintf("agent %s: profile %q: %v", mode, sel.ProfileFor(purpose), err)
		}
	}
	printf(out, "agent %s: %s\n", mode, a.Name())
	return ""
}
