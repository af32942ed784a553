package cmdline

import (
	"strconv"
	"strings"

	"github.com/nerrad567/natsfixture/internal/options"
)

// Spec carries the per-launch inputs that do not live in the store.
type Spec struct {
	// Binary is the executable, emitted as argv[0].
	Binary string

	// PIDFile is force-set on the PID key before rendering.
	PIDFile string

	// ExtraArgs are appended verbatim after the rendered flags.
	ExtraArgs []string
}

// Build renders the command line for the current store contents.
//
// Serializable keys with a non-empty value are emitted in registry order.
// Flag-only keys appear bare when their value is exactly "true" and not at
// all otherwise. Valued keys render as flag=value with the value trimmed
// and lower-cased, except paths, URLs and credentials which keep their case. ExtraArgs follow, then the
// NATS_ARGS string split on "&&".
func Build(store *options.Store, spec Spec) []string {
	if spec.PIDFile != "" {
		store.SetExplicit(options.PID, spec.PIDFile)
	}

	argv := []string{spec.Binary}
	for _, k := range options.Keys() {
		if !k.Serializable() {
			continue
		}
		raw, ok := store.Get(k)
		if !ok {
			continue
		}
		if arg, ok := render(k, raw); ok {
			argv = append(argv, arg)
		}
	}

	argv = append(argv, spec.ExtraArgs...)
	argv = append(argv, SplitArgs(store.String(options.Args))...)
	return argv
}

func render(k options.Key, raw string) (string, bool) {
	if k.FlagOnly {
		return k.Flag, raw == "true"
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	if !preservesCase(k) {
		value = strings.ToLower(value)
	}
	return k.Flag + "=" + value, true
}

// preservesCase reports whether the value is rendered as-is.
// Paths, URLs and credentials are never lower-cased.
func preservesCase(k options.Key) bool {
	return k.CaseSensitive || k.Kind == options.KindPath || k.Kind == options.KindURL
}

// SplitArgs splits a raw argument string on "&&", trimming each piece and
// dropping empty ones.
func SplitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, options.ArgsSeparator) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SignalArgs returns the arguments that ask a running server to act on
// signal, e.g. SignalArgs("stop", 1234) -> ["--signal", "stop=1234"].
func SignalArgs(signal string, pid int) []string {
	return []string{options.Signal.Flag, signal + "=" + strconv.Itoa(pid)}
}
