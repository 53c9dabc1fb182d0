package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// acquirePIDLock claims the single-instance lock file. A file holding a
// live PID aborts startup; a stale file is replaced.
func acquirePIDLock(path string, log zerolog.Logger) error {
	if data, err := os.ReadFile(path); err == nil {
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil && pid != os.Getpid() {
			alive, _ := process.PidExists(int32(pid))
			if alive {
				return fmt.Errorf("another instance is already running (pid %d, lock %s)", pid, path)
			}
			log.Warn().Int("stale_pid", pid).Str("path", path).Msg("Replacing stale PID file")
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// releasePIDLock removes the lock file, but only while it still records
// our own PID. A replacement instance's lock is left untouched.
func releasePIDLock(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if strings.TrimSpace(string(data)) == strconv.Itoa(os.Getpid()) {
		_ = os.Remove(path)
	}
}
