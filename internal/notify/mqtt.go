package notify

import (
	"context"
	"time"

	"github.com/nerrad567/natsfixture/internal/events"
	"github.com/nerrad567/natsfixture/internal/infrastructure/mqtt"
)

// Publisher is the part of *mqtt.Client the sink needs.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Status is the retained per-instance message.
type Status struct {
	Instance string    `json:"instance"`
	State    string    `json:"state"`
	Port     int       `json:"port,omitempty"`
	PID      int       `json:"pid,omitempty"`
	Version  string    `json:"version,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// MQTTSink publishes lifecycle events to MQTT.
type MQTTSink struct {
	pub Publisher
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Publish sends e to its event topic and, for state changes, updates the
// retained status topic.
func (s *MQTTSink) Publish(ctx context.Context, e events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	topics := mqtt.Topics{}
	if err := s.pub.PublishJSON(topics.InstanceEvent(e.Instance, string(e.Type)), e, false); err != nil {
		return err
	}

	state, ok := stateAfter(e.Type)
	if !ok {
		return nil
	}
	return s.pub.PublishJSON(topics.InstanceStatus(e.Instance), Status{
		Instance: e.Instance,
		State:    state,
		Port:     e.Port,
		PID:      e.PID,
		Version:  e.Version,
		Error:    e.Error,
		Time:     e.Time,
	}, true)
}

// stateAfter maps an event to the instance state it leaves behind.
func stateAfter(t events.Type) (string, bool) {
	switch t {
	case events.TypeStarting:
		return "starting", true
	case events.TypeStarted:
		return "running", true
	case events.TypeStopping:
		return "stopping", true
	case events.TypeStopped, events.TypeStartFailed:
		return "stopped", true
	case events.TypeExited:
		return "exited", true
	default:
		return "", false
	}
}
