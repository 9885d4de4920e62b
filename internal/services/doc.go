// Package services exposes the callable services of the integration over
// MQTT.
//
// Services are shared by every active entry. The lifecycle manager activates
// the Registrar when the first entry becomes active and deactivates it when
// the last one goes away; both calls are idempotent.
//
// A call is a JSON message published to lambda/service/<name>/call:
//
//	{"call_id": "c1", "entry_id": "abc123", "address": 1004}
//
// The result is published to lambda/service/<name>/response/<call_id>.
// Calls without a call_id get a generated one. Entry commands on
// lambda/<entry_id>/command/<name> invoke the same services without a
// response.
//
// Services:
//
//   - read_register: read one raw holding register of an entry
//   - refresh: poll an entry now and return its snapshot
//   - reload: schedule a reload of an entry
package services
