package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/natsfixture/internal/acquire"
	"github.com/nerrad567/natsfixture/internal/cmdline"
	"github.com/nerrad567/natsfixture/internal/events"
	"github.com/nerrad567/natsfixture/internal/options"
	"github.com/nerrad567/natsfixture/internal/portalloc"
	"github.com/nerrad567/natsfixture/internal/process"
)

// Timeouts for lifecycle operations that are not configurable per instance.
const (
	// DefaultPort is the base for free-port search when no port is set.
	DefaultPort = 4222

	// signalTimeout bounds the "<binary> --signal stop=<pid>" call.
	signalTimeout = 5 * time.Second

	// eventTimeout bounds delivery of one lifecycle event to the sinks.
	eventTimeout = 2 * time.Second

	// pidDirMode is the permission mode for the per-instance temp directory.
	pidDirMode = 0o755
)

// DefaultTerminationMarkers are stderr fragments that mean the server is
// going down.
var DefaultTerminationMarkers = []string{"[FTL]", "panic:", "fatal error:"}

// Config holds construction-time settings for a Supervisor. Everything
// else lives in the options store.
type Config struct {
	// Name overrides NATS_LOG_NAME as the instance name. It namespaces the
	// PID file and the default binary path.
	Name string

	// TempRoot is the parent of per-instance directories. Defaults to os.TempDir().
	TempRoot string

	// Options are applied at EXPLICIT precedence, keyed by option name.
	Options map[string]string

	// FileOptions are applied at FILE precedence on every start, next to
	// the property file.
	FileOptions map[string]string

	// Args are appended verbatim to the server command line.
	Args []string

	// LookupEnv reads environment variables. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// StartTimeout and StopTimeout override the NATS_TIMEOUT_MS derived
	// waits when non-nil.
	StartTimeout *portalloc.Timeout
	StopTimeout  *portalloc.Timeout

	// GracefulTimeout is how long the process gets between SIGTERM and SIGKILL.
	GracefulTimeout time.Duration

	// HTTPClient is used for binary downloads.
	HTTPClient *http.Client

	// Sink receives lifecycle events.
	Sink events.Sink

	// TerminationMarkers override DefaultTerminationMarkers.
	TerminationMarkers []string
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor owns one server instance: its options, binary, process and
// PID file.
//
// Thread Safety:
//   - Start, Stop and Command are serialised per instance.
//   - Accessors are safe to call at any time.
type Supervisor struct {
	cfg      Config
	store    *options.Store
	acquirer *acquire.Acquirer
	logger   Logger
	sink     events.Sink
	markers  []string

	// opMu serialises Start, Stop and Command.
	opMu sync.Mutex

	mu        sync.RWMutex
	state     State
	proc      *process.Manager
	name      string
	port      int
	pidFile   string
	binary    string
	version   string
	startedAt time.Time
	starts    int
	lastErr   error

	alive atomic.Bool
}

// plan is the resolved input of one launch.
type plan struct {
	name         string
	port         int
	pidFile      string
	binary       string
	version      string
	url          string
	argv         []string
	startTimeout portalloc.Timeout
	stopTimeout  portalloc.Timeout
}

// New creates a stopped Supervisor. Unknown option names fail with
// options.ErrUnknownKey.
func New(cfg Config) (*Supervisor, error) {
	if cfg.TempRoot == "" {
		cfg.TempRoot = os.TempDir()
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	if cfg.Sink == nil {
		cfg.Sink = events.Discard
	}
	markers := cfg.TerminationMarkers
	if markers == nil {
		markers = DefaultTerminationMarkers
	}

	store := options.NewStore()
	store.ApplyDefaults()
	for name, value := range cfg.Options {
		if err := store.Set(options.SourceExplicit, name, value); err != nil {
			return nil, err
		}
	}
	for name := range cfg.FileOptions {
		if _, ok := options.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %q", options.ErrUnknownKey, name)
		}
	}

	return &Supervisor{
		cfg:      cfg,
		store:    store,
		acquirer: acquire.New(cfg.HTTPClient),
		logger:   noopLogger{},
		sink:     cfg.Sink,
		markers:  markers,
		state:    StateStopped,
		port:     -1,
	}, nil
}

// SetLogger sets the logger for the supervisor and its acquirer.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
	s.acquirer.SetLogger(logger)
}

// Store exposes the instance's options. Values set here at EXPLICIT
// precedence take effect on the next Start.
func (s *Supervisor) Store() *options.Store {
	return s.store
}

// Configure sets alternating name/value pairs at EXPLICIT precedence.
func (s *Supervisor) Configure(kv ...string) error {
	return s.store.SetPairs(options.SourceExplicit, kv...)
}

// Start resolves configuration, ensures the binary, launches the server
// and waits until its port accepts connections. Starting a running
// instance logs a warning and returns nil. On failure the process, if
// any, is stopped and the error wraps ErrStartFailed and the cause.
func (s *Supervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State() == StateRunning {
		if s.IsRunning() {
			s.logger.Warn("server already running", "instance", s.Name(), "port", s.Port())
			return nil
		}
		s.logger.Warn("server process is gone, starting again", "instance", s.Name(), "port", s.Port())
		s.abortStart()
	}

	s.setState(StateStarting)
	begin := time.Now()
	s.emit(events.Event{Type: events.TypeStarting})

	if err := s.start(ctx); err != nil {
		s.abortStart()

		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.setState(StateStopped)

		s.logger.Error("server failed to start", "instance", s.Name(), "port", s.Port(), "error", err)
		s.emit(events.Event{Type: events.TypeStartFailed, Duration: time.Since(begin), Error: err.Error()})
		return fmt.Errorf("%w: %s: %w", ErrStartFailed, s.Name(), err)
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.starts++
	s.lastErr = nil
	s.mu.Unlock()
	s.setState(StateRunning)

	s.logger.Info("server started",
		"instance", s.Name(),
		"port", s.Port(),
		"pid", s.PID(),
		"duration", time.Since(begin),
	)
	s.emit(events.Event{Type: events.TypeStarted, PID: s.PID(), Duration: time.Since(begin)})
	return nil
}

func (s *Supervisor) start(ctx context.Context) error {
	p, err := s.prepare()
	if err != nil {
		return err
	}

	if !portalloc.IsFree(p.port) {
		return fmt.Errorf("%w: %d", ErrPortInUse, p.port)
	}

	res, err := s.acquirer.EnsureBinary(ctx, p.url, p.binary)
	if err != nil {
		return err
	}
	if res.Downloaded {
		s.emit(events.Event{Type: events.TypeDownloaded, Duration: res.Duration})
	}

	if err := os.MkdirAll(filepath.Dir(p.pidFile), pidDirMode); err != nil {
		return fmt.Errorf("creating instance directory: %w", err)
	}
	s.clearStalePIDFile(p.pidFile)

	proc := process.NewManager(process.Config{
		Name:            p.name,
		Binary:          p.argv[0],
		Args:            p.argv[1:],
		GracefulTimeout: s.cfg.GracefulTimeout,
		OnStdout:        s.onStdout,
		OnStderr:        s.onStderr,
		OnExit:          s.onExit,
	})
	proc.SetLogger(s.logger)

	s.alive.Store(true)
	if err := proc.Start(); err != nil {
		s.alive.Store(false)
		return err
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	return s.waitForReady(ctx, proc, p.port, p.startTimeout)
}

// waitForReady polls until the port accepts connections, the process
// exits or the timeout elapses.
func (s *Supervisor) waitForReady(ctx context.Context, proc *process.Manager, port int, timeout portalloc.Timeout) error {
	s.logger.Debug("waiting for server", "instance", s.Name(), "port", port, "timeout", timeout)

	exited := false
	ready := portalloc.Poll(ctx, timeout, func() bool {
		if !proc.IsRunning() {
			exited = true
			return true
		}
		return !portalloc.IsFree(port)
	})

	switch {
	case exited:
		if err := proc.LastError(); err != nil {
			return fmt.Errorf("%w: %w", ErrProcessExited, err)
		}
		return ErrProcessExited
	case !ready:
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w on port %d: %w", ErrStartupTimeout, port, err)
		}
		return fmt.Errorf("%w on port %d after %v", ErrStartupTimeout, port, timeout)
	}
	return nil
}

// abortStart tears down whatever a failed start left running. The PID
// file is only removed when this supervisor spawned a process: a start
// that failed before spawning may share the path with another instance
// that owns the port.
func (s *Supervisor) abortStart() {
	s.mu.Lock()
	proc := s.proc
	pidFile := s.pidFile
	s.proc = nil
	s.pidFile = ""
	s.mu.Unlock()

	if proc != nil {
		if err := proc.Stop(); err != nil {
			s.logger.Warn("failed to stop process after failed start", "instance", s.Name(), "error", err)
		}
		s.removePIDFile(pidFile)
	}
	s.alive.Store(false)
	releasePort(s)
}

// prepare re-applies the DEFAULT, ENVIRONMENT and FILE layers and
// resolves everything a launch needs.
func (s *Supervisor) prepare() (plan, error) {
	if err := s.loadLayers(); err != nil {
		return plan{}, err
	}

	name := s.resolveName()

	port, err := s.store.Int(options.Port)
	if err != nil {
		return plan{}, err
	}
	if port <= 0 {
		port, err = reservePort(s, DefaultPort)
		if err != nil {
			return plan{}, err
		}
		s.store.SetExplicit(options.Port, strconv.Itoa(port))
	}

	system := s.store.String(options.System)
	if system == "" {
		system = acquire.DefaultSystem()
	}
	version := acquire.NormalizeVersion(s.store.String(options.Version))
	binary := s.store.String(options.BinaryPath)
	if binary == "" {
		binary = acquire.DefaultBinaryPath(s.cfg.TempRoot, name, version, system)
	}

	timeoutMS, err := s.store.Int(options.TimeoutMS)
	if err != nil && !errors.Is(err, options.ErrNotSet) {
		return plan{}, err
	}

	p := plan{
		name:         name,
		port:         port,
		pidFile:      PIDFilePath(s.cfg.TempRoot, name, port),
		binary:       binary,
		version:      version,
		url:          acquire.ResolveURL(s.store.String(options.DownloadURL), version, system),
		startTimeout: startTimeout(timeoutMS),
		stopTimeout:  portalloc.Millis(timeoutMS),
	}
	if s.cfg.StartTimeout != nil {
		p.startTimeout = *s.cfg.StartTimeout
	}
	if s.cfg.StopTimeout != nil {
		p.stopTimeout = *s.cfg.StopTimeout
	}
	p.argv = cmdline.Build(s.store, cmdline.Spec{
		Binary:    p.binary,
		PIDFile:   p.pidFile,
		ExtraArgs: s.cfg.Args,
	})

	s.mu.Lock()
	s.name = p.name
	s.port = p.port
	s.pidFile = p.pidFile
	s.binary = p.binary
	s.version = p.version
	s.mu.Unlock()

	return p, nil
}

// startTimeout waits indefinitely (bounded by the caller's context) when
// no positive timeout is configured.
func startTimeout(ms int) portalloc.Timeout {
	if ms <= 0 {
		return portalloc.Indefinite
	}
	return portalloc.Millis(ms)
}

// loadLayers re-applies DEFAULT, ENVIRONMENT and FILE values.
func (s *Supervisor) loadLayers() error {
	s.store.ApplyDefaults()
	s.store.ApplyEnv(s.cfg.LookupEnv)
	if err := s.store.ApplyFile(s.cfg.FileOptions); err != nil {
		return err
	}

	path := s.store.String(options.PropertyFile)
	if path == "" {
		path = options.DefaultPropertyFile
	}
	props, err := options.LoadProperties(path)
	if err != nil {
		return err
	}
	return s.store.ApplyFile(props)
}

func (s *Supervisor) resolveName() string {
	if s.cfg.Name != "" {
		return strings.ToLower(s.cfg.Name)
	}
	if n := strings.TrimSpace(s.store.String(options.LogName)); n != "" {
		return strings.ToLower(n)
	}
	return "nats"
}

// Command resolves configuration and returns the command line Start
// would run, without starting anything.
func (s *Supervisor) Command() ([]string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.prepare()
	if err != nil {
		return nil, err
	}
	return p.argv, nil
}

// EnsureBinary resolves configuration and makes sure the server binary
// exists, downloading it if needed, without starting anything.
func (s *Supervisor) EnsureBinary(ctx context.Context) (acquire.Result, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, err := s.prepare()
	if err != nil {
		return acquire.Result{}, err
	}
	res, err := s.acquirer.EnsureBinary(ctx, p.url, p.binary)
	if err != nil {
		return res, err
	}
	if res.Downloaded {
		s.emit(events.Event{Type: events.TypeDownloaded, Duration: res.Duration})
	}
	return res, nil
}

// Stop shuts the server down and never fails. It asks the server to stop
// via its signal subcommand, terminates the process, waits for the port to
// be released and deletes the PID file. Stop is safe to call on an
// instance that was never started.
func (s *Supervisor) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	proc := s.proc
	port := s.port
	pidFile := s.pidFile
	binary := s.binary
	state := s.state
	s.mu.RUnlock()

	if proc == nil && pidFile == "" {
		s.logger.Debug("stop requested for an instance that never started", "instance", s.Name())
		return
	}

	s.setState(StateStopping)
	begin := time.Now()
	if state != StateStopped {
		s.emit(events.Event{Type: events.TypeStopping})
	}

	pid := ReadPID(pidFile)
	if pid > 0 {
		s.sendStopSignal(binary, pid)
	}

	if proc != nil {
		if err := proc.Stop(); err != nil {
			s.logger.Warn("failed to stop server process", "instance", s.Name(), "error", err)
		}
	}
	s.alive.Store(false)

	if port > 0 {
		if !portalloc.WaitFor(context.Background(), port, s.stopTimeout(), true) {
			s.logger.Warn("port still in use after stop", "instance", s.Name(), "port", port)
		}
	}

	s.removePIDFile(pidFile)
	releasePort(s)

	s.mu.Lock()
	s.proc = nil
	s.startedAt = time.Time{}
	s.mu.Unlock()
	s.setState(StateStopped)

	s.logger.Info("server stopped", "instance", s.Name(), "port", port, "duration", time.Since(begin))
	if state != StateStopped {
		s.emit(events.Event{Type: events.TypeStopped, PID: pid, Duration: time.Since(begin)})
	}
}

// Close stops the server. It always returns nil and exists so a
// Supervisor can be used wherever an io.Closer is expected.
func (s *Supervisor) Close() error {
	s.Stop()
	return nil
}

func (s *Supervisor) stopTimeout() portalloc.Timeout {
	if s.cfg.StopTimeout != nil {
		return *s.cfg.StopTimeout
	}
	ms, err := s.store.Int(options.TimeoutMS)
	if err != nil {
		return portalloc.NoWait
	}
	return portalloc.Millis(ms)
}

// sendStopSignal runs "<binary> --signal stop=<pid>". Failures are logged.
func (s *Supervisor) sendStopSignal(binary string, pid int) {
	if binary == "" {
		return
	}
	if _, err := os.Stat(binary); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, cmdline.SignalArgs("stop", pid)...).CombinedOutput() //nolint:gosec // binary is the acquired server
	if err != nil {
		s.logger.Warn("stop signal failed",
			"instance", s.Name(),
			"pid", pid,
			"error", err,
			"output", strings.TrimSpace(string(out)),
		)
		return
	}
	s.logger.Debug("stop signal sent", "instance", s.Name(), "pid", pid)
}

func (s *Supervisor) onStdout(line string) {
	s.logger.Info("server output", "instance", s.Name(), "stream", "stdout", "line", line)
}

func (s *Supervisor) onStderr(line string) {
	s.logger.Warn("server output", "instance", s.Name(), "stream", "stderr", "line", line)
	for _, m := range s.markers {
		if strings.Contains(line, m) {
			if s.alive.Swap(false) {
				s.logger.Warn("server reported termination", "instance", s.Name(), "marker", m)
			}
			return
		}
	}
}

func (s *Supervisor) onExit(err error, requested bool) {
	s.alive.Store(false)
	// The signal subcommand usually ends the server before proc.Stop runs.
	if requested || s.State() == StateStopping {
		return
	}
	e := events.Event{Type: events.TypeExited}
	if err != nil {
		e.Error = err.Error()
	}
	s.emit(e)
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// emit fills in instance details and publishes e. Sink failures are logged.
func (s *Supervisor) emit(e events.Event) {
	s.mu.RLock()
	e.Instance = s.name
	if e.Instance == "" {
		e.Instance = s.resolveName()
	}
	e.Port = s.port
	e.Version = s.version
	s.mu.RUnlock()
	e.Time = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := s.sink.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish lifecycle event", "instance", e.Instance, "type", e.Type, "error", err)
	}
}

// State returns the lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsRunning reports whether the server is up: started, process alive and
// no termination reported on stderr.
func (s *Supervisor) IsRunning() bool {
	s.mu.RLock()
	state, proc := s.state, s.proc
	s.mu.RUnlock()
	return state == StateRunning && proc != nil && proc.IsRunning() && s.alive.Load()
}

// Name returns the instance name.
func (s *Supervisor) Name() string {
	s.mu.RLock()
	name := s.name
	s.mu.RUnlock()
	if name != "" {
		return name
	}
	return s.resolveName()
}

// Port returns the resolved port, or the configured one before the first
// start. -1 means not yet resolved.
func (s *Supervisor) Port() int {
	s.mu.RLock()
	port := s.port
	s.mu.RUnlock()
	if port > 0 {
		return port
	}
	if p, err := s.store.Int(options.Port); err == nil && p > 0 {
		return p
	}
	return -1
}

// PID returns the server PID from the PID file, or -1 when unavailable.
func (s *Supervisor) PID() int {
	return ReadPID(s.PIDFile())
}

// PIDFile returns the PID file path of the current or last launch.
func (s *Supervisor) PIDFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pidFile
}

// BinaryPath returns the server binary of the current or last launch.
func (s *Supervisor) BinaryPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.binary
}

// URL returns the client URL, e.g. nats://localhost:4222. An unspecified
// bind address is reported as localhost.
func (s *Supervisor) URL() string {
	host := strings.TrimSpace(s.store.String(options.Net))
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "nats://" + net.JoinHostPort(host, strconv.Itoa(s.Port()))
}

// Stats contains runtime statistics for a supervised server.
type Stats struct {
	Name      string         `json:"name"`
	State     State          `json:"state"`
	Running   bool           `json:"running"`
	Port      int            `json:"port"`
	PID       int            `json:"pid"`
	PIDFile   string         `json:"pid_file,omitempty"`
	Binary    string         `json:"binary,omitempty"`
	Version   string         `json:"version,omitempty"`
	URL       string         `json:"url"`
	Uptime    time.Duration  `json:"uptime,omitempty"`
	Starts    int            `json:"starts"`
	LastError string         `json:"last_error,omitempty"`
	Process   *process.Stats `json:"process,omitempty"`
}

// Stats returns current statistics for the instance.
func (s *Supervisor) Stats() Stats {
	st := Stats{
		Name:    s.Name(),
		State:   s.State(),
		Running: s.IsRunning(),
		Port:    s.Port(),
		PID:     s.PID(),
		URL:     s.URL(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st.PIDFile = s.pidFile
	st.Binary = s.binary
	st.Version = s.version
	st.Starts = s.starts
	if !s.startedAt.IsZero() && s.state == StateRunning {
		st.Uptime = time.Since(s.startedAt)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.proc != nil {
		ps := s.proc.Stats()
		st.Process = &ps
	}
	return st
}
