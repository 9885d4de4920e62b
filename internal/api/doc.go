// Package api implements the admin HTTP API of lambdawp.
//
// This package provides:
//   - health and runtime metrics endpoints
//   - configuration entry listing, update and reload
//   - the latest coordinator snapshot of an active entry
//   - middleware stack (request ID, logging, recovery, body size limit)
//
// # Architecture
//
// The API sits beside the MQTT surface. It reads entries from the entry
// store and drives reloads through the integration. Updating an entry's
// data fires the store's update listeners, which reload the entry when it
// is active.
//
// The server binds to localhost by default and has no authentication.
package api
