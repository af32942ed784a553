package portalloc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// probeWindow is how many ports above the base NextFree tries.
	probeWindow = 256

	// maxPort is the highest valid TCP port.
	maxPort = 65535

	// dialTimeout bounds a single reachability probe.
	dialTimeout = 500 * time.Millisecond

	// Poll intervals for WaitFor.
	initialPollInterval = 10 * time.Millisecond
	maxPollInterval     = 250 * time.Millisecond
)

// ErrNoFreePort is returned when every port in the probe window is taken.
var ErrNoFreePort = errors.New("no free port found")

// IsFree reports whether nothing accepts TCP connections on the local port.
// A successful connect means the port is in use.
func IsFree(port int) bool {
	if port <= 0 || port > maxPort {
		return false
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), dialTimeout)
	if err != nil {
		return true
	}
	_ = conn.Close()
	return false
}

// NextFree returns the first free port in (base, base+256].
func NextFree(base int) (int, error) {
	if base < 0 {
		base = 0
	}
	for port := base + 1; port <= base+probeWindow && port <= maxPort; port++ {
		if IsFree(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w: tried %d..%d", ErrNoFreePort, base+1, min(base+probeWindow, maxPort))
}

// WaitFor polls the port until its free/occupied state matches wantFree.
// It returns false if the timeout elapses or ctx ends first. NoWait checks
// exactly once; Indefinite is bounded by ctx alone.
func WaitFor(ctx context.Context, port int, timeout Timeout, wantFree bool) bool {
	return Poll(ctx, timeout, func() bool { return IsFree(port) == wantFree })
}

// Poll calls cond with exponential backoff until it returns true, the
// timeout elapses or ctx ends.
func Poll(ctx context.Context, timeout Timeout, cond func() bool) bool {
	if cond() {
		return true
	}
	if timeout.IsNoWait() {
		return false
	}

	if d, ok := timeout.Duration(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialPollInterval
	b.MaxInterval = maxPollInterval
	b.RandomizationFactor = 0

	timer := time.NewTimer(b.NextBackOff())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// One last look: the condition may have become true while sleeping.
			return cond()
		case <-timer.C:
		}
		if cond() {
			return true
		}
		timer.Reset(b.NextBackOff())
	}
}
