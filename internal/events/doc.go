// Package events defines fixture lifecycle events and the sinks that
// receive them (launch history, MQTT, InfluxDB, Prometheus).
//
// Sinks observe the lifecycle; a failing sink never changes it.
package events
