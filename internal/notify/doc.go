// Package notify forwards fixture lifecycle events to external systems.
//
// MQTTSink publishes every event to natsfixture/instance/<name>/<type> and
// keeps a retained status message per instance. InfluxSink writes one
// fixture_lifecycle point per event. Both implement events.Sink and are
// combined with events.Multi.
package notify
