package notify

import (
	"context"
	"time"

	"github.com/nerrad567/natsfixture/internal/events"
)

// Measurement is the InfluxDB measurement for lifecycle points.
const Measurement = "fixture_lifecycle"

// PointWriter is the part of *influxdb.Client the sink needs.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time)
}

// InfluxSink writes one point per lifecycle event.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Publish queues a point for e. Writes are asynchronous, so the only
// error is a cancelled context.
func (s *InfluxSink) Publish(ctx context.Context, e events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tags := map[string]string{
		"instance": e.Instance,
		"type":     string(e.Type),
	}
	if e.Version != "" {
		tags["version"] = e.Version
	}

	fields := map[string]interface{}{
		"port":        e.Port,
		"duration_ms": e.Duration.Milliseconds(),
		"failed":      e.Error != "",
	}
	if e.PID > 0 {
		fields["pid"] = e.PID
	}
	if e.Error != "" {
		fields["error"] = e.Error
	}

	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	s.w.WritePointWithTime(Measurement, tags, fields, ts)
	return nil
}
