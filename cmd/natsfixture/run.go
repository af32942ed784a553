package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/nerrad567/natsfixture/internal/api"
	"github.com/nerrad567/natsfixture/internal/events"
	"github.com/nerrad567/natsfixture/internal/history"
	"github.com/nerrad567/natsfixture/internal/infrastructure/database"
	"github.com/nerrad567/natsfixture/internal/infrastructure/influxdb"
	"github.com/nerrad567/natsfixture/internal/infrastructure/mqtt"
	"github.com/nerrad567/natsfixture/internal/metrics"
	"github.com/nerrad567/natsfixture/internal/notify"
	"github.com/nerrad567/natsfixture/internal/supervisor"
	"github.com/nerrad567/natsfixture/migrations"
)

const metricsShutdownTimeout = 5 * time.Second

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the configured instances and keep them running until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runInstances(cmd.Context())
		},
	}
}

// runInstances wires the optional sinks, starts every instance and blocks
// until ctx is cancelled. Resources are released in reverse order.
func (a *app) runInstances(ctx context.Context) error {
	log := a.log
	log.Info("natsfixture starting", "version", version, "commit", commit, "instances", a.cfg.Instance.Count)

	var sinks events.Multi

	// History
	var repo *history.SQLiteRepository
	if a.cfg.History.Enabled {
		db, err := database.Open(database.Config{
			Path:        a.cfg.History.Path,
			WALMode:     a.cfg.History.WALMode,
			BusyTimeout: a.cfg.History.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrating history database: %w", err)
		}
		repo = history.NewSQLiteRepository(db.DB)
		sinks = append(sinks, history.Sink(repo))
		log.Info("history enabled", "path", db.Path())
	}

	// MQTT
	if a.cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(ctx, a.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT connection", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		sinks = append(sinks, notify.NewMQTTSink(mqttClient))
		log.Info("MQTT notifications enabled", "broker", a.cfg.MQTT.Broker.Host)
	}

	// InfluxDB
	if a.cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB connection", "error", closeErr)
			}
			stats := influxClient.Stats()
			log.Info("InfluxDB closed", "queued", stats.Queued, "failed", stats.Failed, "dropped", stats.Dropped)
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write failed", "error", err)
		})
		sinks = append(sinks, notify.NewInfluxSink(influxClient))
		log.Info("InfluxDB time series enabled", "url", a.cfg.InfluxDB.URL)
	}

	// Metrics
	var collector *metrics.Collector
	if a.cfg.Metrics.Enabled {
		collector = metrics.New(metrics.DefaultNamespace)
		sinks = append(sinks, collector)
		if !a.cfg.API.Enabled {
			stop, err := a.serveMetrics(collector)
			if err != nil {
				return err
			}
			defer stop()
		}
	}

	// The hub must be a sink before the supervisors exist; the API server
	// that owns it is built once they do.
	var hub *api.Hub
	if a.cfg.API.Enabled {
		hub = api.NewHub(a.cfg.API, log.With("component", "api"))
		sinks = append(sinks, hub)
	}

	var sink events.Sink = events.Discard
	if len(sinks) > 0 {
		sink = sinks
	}

	sups, err := a.newSupervisors(sink)
	if err != nil {
		return err
	}

	if a.cfg.API.Enabled {
		deps := api.Deps{
			Config:  a.cfg.API,
			Logger:  log.With("component", "api"),
			Hub:     hub,
			Version: version,
		}
		for _, s := range sups {
			deps.Fixtures = append(deps.Fixtures, s)
		}
		if repo != nil {
			deps.History = repo
		}
		if collector != nil {
			deps.Metrics = collector.Handler()
		}
		srv, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := supervisor.StartAll(ctx, sups...); err != nil {
		return err
	}
	defer supervisor.StopAll(sups...)

	for _, s := range sups {
		fmt.Fprintln(a.stdout, s.URL())
	}
	log.Info("natsfixture started successfully")

	<-ctx.Done()
	log.Info("shutdown signal received, stopping instances")
	return nil
}

// serveMetrics exposes the collector on its own listener and returns a
// function that shuts the listener down.
func (a *app) serveMetrics(c *metrics.Collector) (func(), error) {
	ln, err := net.Listen("tcp", a.cfg.Metrics.Listen)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics on %s: %w", a.cfg.Metrics.Listen, err)
	}

	r := chi.NewRouter()
	r.Method(http.MethodGet, a.cfg.Metrics.Path, c.Handler())
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server error", "error", err)
		}
	}()
	a.log.Info("metrics endpoint listening", "address", ln.Addr().String(), "path", a.cfg.Metrics.Path)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Error("error closing metrics server", "error", err)
		}
	}, nil
}
