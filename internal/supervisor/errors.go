package supervisor

import "errors"

var (
	// ErrStartFailed wraps every failure of Start; errors.Is also matches the cause.
	ErrStartFailed = errors.New("failed to start server")

	// ErrPortInUse is returned when the target port is already accepting connections.
	ErrPortInUse = errors.New("port already in use")

	// ErrStartupTimeout is returned when the server does not open its port in time.
	ErrStartupTimeout = errors.New("server did not become reachable in time")

	// ErrProcessExited is returned when the server exits while starting.
	ErrProcessExited = errors.New("server process exited during startup")
)
