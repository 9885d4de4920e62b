// Package integration is the boundary the daemon calls into.
//
// It exposes the five host entry points (integration setup, entry setup,
// unload, migration and reload) and converts every failure, panics
// included, into a boolean result or a log line. Start and Stop drive the
// entry points for all persisted entries when the daemon starts and stops.
package integration
