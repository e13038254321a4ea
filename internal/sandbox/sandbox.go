// Package sandbox confines external agent runners.
package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// waitDelay bounds how long Wait waits for a cancelled runner's pipes to close.
const waitDelay = 2 * time.Second

var systemBinds = []string{
	"--ro-bind", "/usr", "/usr",
	"--ro-bind", "/lib", "/lib",
	"--ro-bind", "/lib64", "/lib64",
	"--ro-bind", "/bin", "/bin",
	"--ro-bind", "/etc/resolv.conf", "/etc/resolv.conf",
	"--dev", "/dev",
	"--proc", "/proc",
	"--tmpfs", "/tmp",
	"--unshare-pid",
}

// Available reports whether WrapCommand can actually confine a process here.
func Available() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	_, err := exec.LookPath("bwrap")
	return err == nil
}

// WrapCommand returns a command running binary inside a bubblewrap sandbox when
// root is set and bwrap exists on Linux; otherwise the command runs directly.
// root is bound read-only. workDir, if under root, is the only writable path;
// with no workDir the whole root is writable. Cancelling ctx kills the runner
// together with every process it started.
func WrapCommand(ctx context.Context, root, workDir, binary string, args []string) *exec.Cmd {
	cmd := wrap(ctx, root, workDir, binary, args)
	killGroupOnCancel(cmd)
	cmd.WaitDelay = waitDelay
	return cmd
}

func wrap(ctx context.Context, root, workDir, binary string, args []string) *exec.Cmd {
	if root == "" || !Available() {
		return exec.CommandContext(ctx, binary, args...)
	}
	bwrap, _ := exec.LookPath("bwrap")
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return exec.CommandContext(ctx, binary, args...)
	}
	bwrapArgs := BindArgs(absRoot, workDir)
	bwrapArgs = append(bwrapArgs, "--", binary)
	bwrapArgs = append(bwrapArgs, args...)
	return exec.CommandContext(ctx, bwrap, bwrapArgs...)
}

// BindArgs builds the bubblewrap mount arguments for absRoot and workDir.
func BindArgs(absRoot, workDir string) []string {
	var out []string
	absWork := ""
	if workDir != "" {
		absWork, _ = filepath.Abs(workDir)
	}
	if absWork != "" && within(absRoot, absWork) {
		out = append(out, "--ro-bind", absRoot, absRoot, "--bind", absWork, absWork)
	} else {
		out = append(out, "--bind", absRoot, absRoot)
	}
	return append(out, systemBinds...)
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}
