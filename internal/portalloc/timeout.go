package portalloc

import (
	"fmt"
	"time"
)

type waitMode int

const (
	modeNoWait waitMode = iota
	modeBounded
	modeIndefinite
)

// Timeout says how long a wait may block. The zero value is NoWait.
type Timeout struct {
	mode waitMode
	d    time.Duration
}

var (
	// NoWait checks the condition once and returns.
	NoWait = Timeout{mode: modeNoWait}

	// Indefinite waits until the condition holds or the context ends.
	Indefinite = Timeout{mode: modeIndefinite}
)

// After bounds a wait by d. Non-positive durations mean NoWait.
func After(d time.Duration) Timeout {
	if d <= 0 {
		return NoWait
	}
	return Timeout{mode: modeBounded, d: d}
}

// Millis bounds a wait by ms milliseconds. Non-positive values mean NoWait.
func Millis(ms int) Timeout {
	return After(time.Duration(ms) * time.Millisecond)
}

// IsNoWait reports whether the timeout performs a single check.
func (t Timeout) IsNoWait() bool { return t.mode == modeNoWait }

// IsIndefinite reports whether the wait is only bounded by its context.
func (t Timeout) IsIndefinite() bool { return t.mode == modeIndefinite }

// Duration returns the bound and true for bounded timeouts.
func (t Timeout) Duration() (time.Duration, bool) {
	return t.d, t.mode == modeBounded
}

func (t Timeout) String() string {
	switch t.mode {
	case modeBounded:
		return t.d.String()
	case modeIndefinite:
		return "indefinite"
	default:
		return "nowait"
	}
}

// ParseTimeout reads "nowait", "indefinite" or a Go duration such as "10s".
func ParseTimeout(s string) (Timeout, error) {
	switch s {
	case "", "nowait", "0":
		return NoWait, nil
	case "indefinite", "forever":
		return Indefinite, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return NoWait, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return After(d), nil
}
