package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shahincodev/Sofware-AI-English/internal/sandbox"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// AllowlistEnv carries the outbound domain allowlist to the runner.
const AllowlistEnv = "SOFTWARE_AI_NETWORK_ALLOWLIST"

// Request is written to the runner's stdin as one JSON line.
type Request struct {
	TaskID           string      `json:"task_id"`
	Text             string      `json:"text"`
	Mode             models.Mode `json:"mode"`
	NetworkAllowlist []string    `json:"network_allowlist,omitempty"`
}

// SubprocessAgent runs an external runner binary: stdin is a JSON Request,
// stdout is NDJSON events, and any non-JSON stdout lines form the result.
// With SandboxRoot set (and bubblewrap available on Linux) the runner is
// confined; WorkDir, if under SandboxRoot, is then its only writable path.
type SubprocessAgent struct {
	Command          string
	Args             []string
	SandboxRoot      string
	WorkDir          string
	NetworkAllowlist []string
	// Guard rejects task text containing destructive shell fragments.
	Guard  bool
	Logger *slog.Logger
}

func (SubprocessAgent) Name() string { return "subprocess" }

func (a SubprocessAgent) Execute(ctx context.Context, task models.Task, emit func(models.Event)) (Result, error) {
	if a.Command == "" {
		return Result{}, errors.New("subprocess command is required")
	}
	if a.Guard {
		if frag, blocked := sandbox.Blocked(task.Text); blocked {
			return Result{}, fmt.Errorf("task text contains blocked command %q", frag)
		}
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cmd := sandbox.WrapCommand(ctx, a.SandboxRoot, a.WorkDir, a.Command, a.Args)
	if len(a.NetworkAllowlist) > 0 {
		cmd.Env = append(os.Environ(), AllowlistEnv+"="+strings.Join(a.NetworkAllowlist, ","))
	}
	reqJSON, err := json.Marshal(Request{
		TaskID:           task.ID,
		Text:             task.Text,
		Mode:             task.Mode,
		NetworkAllowlist: a.NetworkAllowlist,
	})
	if err != nil {
		return Result{}, err
	}
	cmd.Stdin = strings.NewReader(string(reqJSON) + "\n")
	var stderr strings.Builder
	cmd.Stderr = &limitedWriter{w: &stderr, n: 4096}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	// Unblock the reader if a runner's descendants keep stdout open after cancel.
	stop := context.AfterFunc(ctx, func() { _ = stdout.Close() })
	defer stop()

	var output strings.Builder
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
			output.WriteString(line)
			output.WriteString("\n")
			continue
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}
		ev.TaskID, ev.Mode, ev.Agent = task.ID, task.Mode, a.Name()
		emit(ev)
	}
	scanErr := sc.Err()
	if scanErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("runner stopped: %w", ctx.Err())
		}
		logger.Warn("subprocess exited with error", "task_id", task.ID, "err", err)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Result{}, fmt.Errorf("%w: %s", err, msg)
		}
		return Result{}, err
	}
	if scanErr != nil {
		return Result{}, scanErr
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	return Result{Output: strings.TrimSpace(output.String())}, nil
}

type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	q := p
	if len(q) > l.n {
		q = q[:l.n]
	}
	l.n -= len(q)
	if _, err := l.w.Write(q); err != nil {
		return 0, err
	}
	return len(p), nil
}
