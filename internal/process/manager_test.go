package process

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// lineRecorder collects output lines from a process.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) has(line string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l == line {
			return true
		}
	}
	return false
}

func waitDone(t *testing.T, m *Manager, d time.Duration) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(d):
		t.Fatalf("process did not exit within %v", d)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{
		Name:   "test-proc",
		Binary: "/usr/bin/test",
		Args:   []string{"--flag"},
	})

	if m.config.Name != "test-proc" {
		t.Errorf("Name = %q, want %q", m.config.Name, "test-proc")
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 10*time.Second)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %v, want %v", m.Status(), StatusStopped)
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
	if m.Done() != nil {
		t.Error("Done() should be nil before Start")
	}
}

func TestManager_CapturesOutputLines(t *testing.T) {
	var stdout, stderr lineRecorder
	m := NewManager(Config{
		Name:     "echo",
		Binary:   "/bin/sh",
		Args:     []string{"-c", "echo hello; echo oops >&2"},
		OnStdout: stdout.add,
		OnStderr: stderr.add,
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, m, 5*time.Second)

	if !stdout.has("hello") {
		t.Errorf("stdout lines = %v, want hello", stdout.lines)
	}
	if !stderr.has("oops") {
		t.Errorf("stderr lines = %v, want oops", stderr.lines)
	}
}

func TestManager_UnexpectedExit(t *testing.T) {
	var (
		mu        sync.Mutex
		exitErr   error
		requested = true
	)
	m := NewManager(Config{
		Name:   "failing",
		Binary: "/bin/sh",
		Args:   []string{"-c", "exit 3"},
		OnExit: func(err error, req bool) {
			mu.Lock()
			defer mu.Unlock()
			exitErr, requested = err, req
		},
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, m, 5*time.Second)

	if m.Status() != StatusExited {
		t.Errorf("Status() = %v, want %v", m.Status(), StatusExited)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil, want exit status")
	}

	mu.Lock()
	defer mu.Unlock()
	if exitErr == nil || requested {
		t.Errorf("OnExit(err=%v, requested=%v), want non-nil error and false", exitErr, requested)
	}
}

func TestManager_StopRunning(t *testing.T) {
	m := NewManager(Config{
		Name:   "sleeper",
		Binary: "/bin/sh",
		Args:   []string{"-c", "sleep 30"},
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if m.PID() <= 0 {
		t.Errorf("PID() = %d, want > 0", m.PID())
	}

	start := time.Now()
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Stop() took %v", elapsed)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %v, want %v", m.Status(), StatusStopped)
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil after requested stop", m.LastError())
	}
}

func TestManager_StopEscalatesToKill(t *testing.T) {
	m := NewManager(Config{
		Name:            "stubborn",
		Binary:          "/bin/sh",
		Args:            []string{"-c", `trap "" TERM; while true; do sleep 0.1; done`},
		GracefulTimeout: 200 * time.Millisecond,
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// Give the shell time to install its trap.
	time.Sleep(100 * time.Millisecond)

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestManager_StopBeforeStart(t *testing.T) {
	m := NewManager(Config{Name: "idle", Binary: "/bin/true"})
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error = %v, want nil", err)
	}
}

func TestManager_StartTwice(t *testing.T) {
	m := NewManager(Config{
		Name:   "twice",
		Binary: "/bin/sh",
		Args:   []string{"-c", "sleep 30"},
	})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop() //nolint:errcheck

	err := m.Start()
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("second Start() error = %v, want already running", err)
	}
}

func TestManager_StartMissingBinary(t *testing.T) {
	m := NewManager(Config{Name: "missing", Binary: "/nonexistent/binary"})

	if err := m.Start(); err == nil {
		t.Fatal("Start() error = nil, want error")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %v, want %v", m.Status(), StatusStopped)
	}
	select {
	case <-m.Done():
	default:
		t.Error("Done() should be closed after a failed start")
	}
}

func TestManager_Stats(t *testing.T) {
	m := NewManager(Config{
		Name:   "stats",
		Binary: "/bin/sh",
		Args:   []string{"-c", "sleep 30"},
	})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop() //nolint:errcheck

	stats := m.Stats()
	if stats.Name != "stats" {
		t.Errorf("Name = %q, want stats", stats.Name)
	}
	if stats.Status != StatusRunning {
		t.Errorf("Status = %v, want %v", stats.Status, StatusRunning)
	}
	if stats.PID <= 0 {
		t.Errorf("PID = %d, want > 0", stats.PID)
	}
}
