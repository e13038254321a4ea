// Package daemon runs the engine behind the HTTP API as a long-lived process
// and inspects or stops a running instance through its pid file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"github.com/shahincodev/Sofware-AI-English/internal/core"
	"github.com/shahincodev/Sofware-AI-English/internal/httpapi"
	"github.com/shahincodev/Sofware-AI-English/internal/memory"
	"github.com/shahincodev/Sofware-AI-English/internal/otel"
)

// ErrAlreadyRunning is returned when another daemon holds the lock for the same home.
var ErrAlreadyRunning = errors.New("software-ai is already running")

const shutdownTimeout = 15 * time.Second

// ServeOptions configures Serve.
type ServeOptions struct {
	Config *config.Config
	Logger *slog.Logger
	// Ready, if set, is called with the bound address once the server accepts connections.
	Ready func(addr string)
}

// StatusInfo is the result of Status.
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}

// Serve runs the daemon in the foreground until ctx ends or the server fails.
// On the way out it stops accepting requests, drains admitted tasks and closes memory.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg := opts.Config
	if cfg == nil || cfg.Home == "" {
		return errors.New("home is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	home := cfg.Home

	lock, err := acquireLock(lockPath(home))
	if err != nil {
		return err
	}
	defer lock.release()

	startPprof(cfg.HTTP.PprofAddr, logger)

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	addr := ln.Addr().String()

	if err := os.WriteFile(pidPath(home), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = ln.Close()
		return err
	}
	_ = os.WriteFile(addrPath(home), []byte(addr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(home))
		_ = os.Remove(addrPath(home))
	}()

	srvOpts := httpapi.ServerOptions{
		Addr:   addr,
		APIKey: cfg.HTTP.APIKey,
		Logger: logger,
	}
	if cfg.HTTP.Otel {
		exp, err := otel.Setup(ctx, "software-ai", "")
		if err != nil {
			logger.Warn("otel init failed, using plain metrics", "err", err)
		} else {
			defer func() { _ = exp.Shutdown(context.Background()) }()
			srvOpts.MetricsHandler = exp.Handler
			srvOpts.UseOtelHTTP = true
		}
	}

	hub := httpapi.NewSSEHub()
	app, err := core.Open(ctx, cfg, logger, core.WithEvents(hub.Publish))
	if err != nil {
		_ = ln.Close()
		return err
	}
	if srvOpts.UseOtelHTTP {
		if err := otel.InitMetricsWithGauges(ctx, otel.Gauges{
			InFlight:   func() int64 { return int64(app.Engine.InFlight()) },
			STMEntries: func() int64 { return int64(app.Memory.ShortTerm().Len()) },
		}); err != nil {
			logger.Warn("otel gauges not registered", "err", err)
		}
	}

	var sweeper *memory.Sweeper
	if cfg.Memory.SweepSchedule != "" {
		if sweeper, err = memory.StartSweeper(app.Memory, cfg.Memory.SweepSchedule, logger); err != nil {
			_ = ln.Close()
			_ = app.Close(context.Background())
			return err
		}
	}

	api := httpapi.NewApp(app, hub, srvOpts)
	// Request contexts derive from baseCtx so open SSE streams end on shutdown.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	api.Server.BaseContext = func(net.Listener) context.Context { return baseCtx }

	logger.Info("daemon starting", "addr", addr, "home", home, "concurrency", app.Engine.Concurrency(),
		"ltm", cfg.LTM.Driver, "modes", app.Router.Modes())
	errCh := make(chan error, 1)
	go func() { errCh <- api.Server.Serve(ln) }()
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	cancelBase()
	_ = api.Server.Shutdown(shutdownCtx)
	sweeper.Stop(shutdownCtx)
	if err := app.Close(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "err", err)
	}
	logger.Info("daemon stopped")

	if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) || errors.Is(serveErr, io.EOF) {
		return nil
	}
	return serveErr
}

// StartBackground re-executes the current binary as "serve" in a new session
// and waits briefly for it to report running.
func StartBackground(ctx context.Context, home string, extraArgs []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	if st, _ := Status(ctx, home); st.Running {
		return 0, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, st.PID)
	}
	if err := os.MkdirAll(config.LogDir(home), 0o755); err != nil {
		return 0, err
	}
	stderr, err := os.OpenFile(LogPath(home), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Left open for the child's lifetime.

	args := append([]string{"serve", "--home", home}, extraArgs...)
	cmd := exec.Command(exe, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	setDaemonSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd.Process.Pid, nil
}

// Stop sends SIGTERM to the running daemon and waits for it to exit, killing
// it after the shutdown timeout. It reports whether a daemon was running.
func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, err
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(shutdownTimeout)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	_ = proc.Kill()
	return true, nil
}

// Status reads the pid file and checks that the process is alive. A stale pid
// file is removed.
func Status(_ context.Context, home string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(home))
	if err != nil {
		return StatusInfo{}, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pb)))
	if err != nil || pid <= 0 {
		return StatusInfo{}, nil
	}
	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{}, nil
	}
	addr := "unknown"
	if ab, err := os.ReadFile(addrPath(home)); err == nil {
		if s := strings.TrimSpace(string(ab)); s != "" {
			addr = s
		}
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}
