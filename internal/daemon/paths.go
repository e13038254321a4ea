package daemon

import (
	"path/filepath"

	"github.com/shahincodev/Sofware-AI-English/internal/config"
)

func pidPath(home string) string {
	return filepath.Join(config.RunDir(home), "daemon.pid")
}

func lockPath(home string) string {
	return filepath.Join(config.RunDir(home), "daemon.lock")
}

func addrPath(home string) string {
	return filepath.Join(config.RunDir(home), "daemon.addr")
}

// LogPath is where a detached daemon's stderr goes.
func LogPath(home string) string {
	return filepath.Join(config.LogDir(home), "daemon.log")
}
