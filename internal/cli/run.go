package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shahincodev/Sofware-AI-English/internal/core"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run tasks and print their outcomes in submission order",
		Long: `Run each argument as one task. With no arguments, tasks are read from
stdin, one per line. Outcomes print in the order the tasks were given.
The command fails if any outcome could not be written to memory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			mode, err := models.ParseMode(cfg.Mode)
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
			}

			texts := args
			if len(texts) == 0 {
				if texts, err = readTasks(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if len(texts) == 0 {
				return errors.New("no tasks given")
			}

			logger, closeLog, err := setupLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			app, err := core.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(context.Background()) }()

			tasks := make([]models.Task, len(texts))
			for i, text := range texts {
				tasks[i] = models.NewTask(text, mode)
			}
			outcomes, runErr := app.Engine.RunAll(cmd.Context(), tasks)
			if outcomes == nil && runErr != nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for _, o := range outcomes {
				if asJSON {
					if err := enc.Encode(o); err != nil {
						return err
					}
					continue
				}
				printf(out, "%s\t%s\t%s\n", o.TaskID, o.Status, outcomeDetail(o))
			}
			if runErr != nil {
				return fmt.Errorf("some outcomes were not saved: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().String("mode", "browser", "Task mode: browser or code")
	cmd.Flags().Int("concurrency", 1, "Maximum tasks executing at once")
	cmd.Flags().Bool("stub", false, "Use the local stub agent for modes without a configured runner")
	cmd.Flags().String("ltm-driver", "sqlite", "Long-term store: sqlite, postgres or redis")
	cmd.Flags().String("ltm-dsn", "", "Long-term store DSN")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print each outcome as a JSON line")

	return cmd
}

func readTasks(r io.Reader) ([]string, error) {
	var texts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	return texts, sc.Err()
}

func outcomeDetail(o models.Outcome) string {
	if o.Succeeded() {
		if o.Result != nil {
			return oneLine(*o.Result)
		}
		return ""
	}
	if o.ErrorMessage == "" {
		return string(o.ErrorKind)
	}
	return string(o.ErrorKind) + ": " + oneLine(o.ErrorMessage)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
