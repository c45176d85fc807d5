// Package pid guards against concurrent daemon instances fighting over
// the same fan controllers.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

const pidFile = "ipmifanctl.pid"

func path() string {
	return filepath.Join(os.TempDir(), pidFile)
}

// Write writes the current process ID to the PID file. If the file exists
// and its process is still alive, another instance owns the hardware and
// Write fails.
func Write() error {
	errFactory := errors.New()

	if data, err := os.ReadFile(path()); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if process.Signal(syscall.Signal(0)) == nil {
					return errFactory.WithData(errors.ErrResourceBusy, "another instance is running, pid "+strconv.Itoa(pid))
				}
			}
		}
		// Stale file from a dead process, take it over.
	}

	if err := os.WriteFile(path(), []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove() error {
	if err := os.Remove(path()); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
