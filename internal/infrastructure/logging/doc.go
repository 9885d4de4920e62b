// Package logging provides structured logging for lambdawp.
//
// This package wraps Go's standard log/slog package. Every logger carries
// the service and version fields, and all loggers derived from one root share
// a single level that can be raised to debug at runtime (the integration's
// debug option).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("entry set up", "entry_id", id)
//	logger.SetDebug(true)
//
// Never log secrets such as the MQTT password or InfluxDB token.
package logging
