// Package logging provides structured logging for natsfixture.
//
// This package wraps Go's standard log/slog package so every component logs
// the same way. Supervisors, acquirers and process managers accept a small
// Logger interface that *Logger satisfies.
//
// # Features
//
//   - Text output for terminals, JSON for log collectors
//   - Default fields (service, version) on all log entries
//   - Level shared between a logger and its children, changeable at runtime
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// NATS_LOG_LEVEL, when set, overrides the configured level.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("server started", "instance", "nats", "port", 4222)
//
// # Security
//
// Never log passwords or tokens. Server options USER, PASS and AUTH are
// rendered into the command line and must not be logged with it.
package logging
