package events

import (
	"context"
	"errors"
	"time"
)

// Type identifies a lifecycle transition.
type Type string

const (
	TypeStarting    Type = "starting"
	TypeStarted     Type = "started"
	TypeStartFailed Type = "start_failed"
	TypeStopping    Type = "stopping"
	TypeStopped     Type = "stopped"
	TypeExited      Type = "exited"
	TypeDownloaded  Type = "downloaded"
)

// Event describes one lifecycle transition of a fixture instance.
type Event struct {
	ID       string        `json:"id,omitempty"`
	Instance string        `json:"instance"`
	Type     Type          `json:"type"`
	Port     int           `json:"port,omitempty"`
	PID      int           `json:"pid,omitempty"`
	Version  string        `json:"version,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Error    string        `json:"error,omitempty"`
	Time     time.Time     `json:"time"`
}

// Sink receives lifecycle events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// Publish delivers e to all sinks, even if some fail.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
