// Package automation binds the time-based cycling automations of a Lambda
// entry.
//
// Each bound entry gets one scheduler goroutine with two jobs:
//
//   - at every local midnight the daily cycling counters of the entry's
//     coordinator are reset and a "daily_reset" event is published;
//   - at a fixed interval the current cycling counters are published as a
//     "cycling_snapshot" event.
//
// Events go to lambda/automation/<entry_id>/<name>. The coordinator is
// looked up at fire time through a Resolver, so a binding outlives reloads
// of the coordinator as long as the entry stays registered.
//
// # Thread Safety
//
// Binder is safe for concurrent use. Bind and Unbind are idempotent.
package automation
