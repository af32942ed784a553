// Package metrics exposes fixture lifecycle metrics for Prometheus.
//
// A Collector owns a private registry, so several collectors (one per test,
// for example) never clash on registration. It is an events.Sink: attach it
// to the supervisors and serve Handler() on the metrics listener.
//
//	c := metrics.New("natsfixture")
//	sup, _ := supervisor.New(supervisor.Config{Sink: c})
//	http.Handle("/metrics", c.Handler())
package metrics
