package supervisor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFilePath returns <root>/<name>/<port>.pid.
func PIDFilePath(root, name string, port int) string {
	return filepath.Join(root, name, strconv.Itoa(port)+".pid")
}

// ReadPID returns the PID stored in path, or -1 when the file is missing
// or does not hold a positive integer.
func ReadPID(path string) int {
	if path == "" {
		return -1
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is built by PIDFilePath
	if err != nil {
		return -1
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return -1
	}
	return pid
}

// processAlive reports whether a process with pid exists and can be signalled.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes for existence.
	return proc.Signal(syscall.Signal(0)) == nil
}

// clearStalePIDFile removes a PID file left behind by a dead process.
func (s *Supervisor) clearStalePIDFile(path string) {
	pid := ReadPID(path)
	if pid < 0 {
		s.removePIDFile(path)
		return
	}
	if processAlive(pid) {
		s.logger.Warn("PID file belongs to a live process, leaving it for the server to replace",
			"path", path, "pid", pid)
		return
	}
	s.logger.Info("removing stale PID file", "path", path, "stale_pid", pid)
	s.removePIDFile(path)
}

func (s *Supervisor) removePIDFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove PID file", "path", path, "error", err)
	} else if err == nil {
		s.logger.Debug("removed PID file", "path", path)
	}
}
