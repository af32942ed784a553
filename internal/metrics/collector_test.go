package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/natsfixture/internal/events"
)

func publish(t *testing.T, c *Collector, evs ...events.Event) {
	t.Helper()
	for _, e := range evs {
		require.NoError(t, c.Publish(context.Background(), e))
	}
}

func TestCollector_StartStop(t *testing.T) {
	c := New("test")
	publish(t, c,
		events.Event{Instance: "nats", Type: events.TypeStarting},
		events.Event{Instance: "nats", Type: events.TypeStarted, Duration: 300 * time.Millisecond},
	)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.running.WithLabelValues("nats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("nats", "started")))

	count, err := testutil.GatherAndCount(c.registry, "test_start_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	publish(t, c,
		events.Event{Instance: "nats", Type: events.TypeStopping},
		events.Event{Instance: "nats", Type: events.TypeStopped, Duration: time.Second},
	)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.running.WithLabelValues("nats")))
}

func TestCollector_Failures(t *testing.T) {
	c := New("test")
	publish(t, c,
		events.Event{Instance: "a", Type: events.TypeStartFailed, Error: "timeout"},
		events.Event{Instance: "a", Type: events.TypeStartFailed, Error: "timeout"},
		events.Event{Instance: "b", Type: events.TypeExited},
	)

	expected := `
# HELP test_failures_total Total number of failed starts and unexpected exits
# TYPE test_failures_total counter
test_failures_total{instance="a",reason="start"} 2
test_failures_total{instance="b",reason="exited"} 1
`
	err := testutil.GatherAndCompare(c.registry, strings.NewReader(expected), "test_failures_total")
	assert.NoError(t, err)
}

func TestCollector_Download(t *testing.T) {
	c := New("")
	publish(t, c, events.Event{Instance: "nats", Type: events.TypeDownloaded, Duration: 3 * time.Second})

	count, err := testutil.GatherAndCount(c.registry, "natsfixture_download_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollector_Handler(t *testing.T) {
	c := New("test")
	publish(t, c, events.Event{Instance: "nats", Type: events.TypeStarted})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_instance_running{instance="nats"} 1`)
	assert.Contains(t, string(body), `test_lifecycle_events_total{instance="nats",type="started"} 1`)
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New("test")
		New("test")
	})
}
