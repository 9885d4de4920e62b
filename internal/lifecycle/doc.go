// Package lifecycle brings configuration entries up and down.
//
// A Manager owns one Registry of active entries and drives the collaborators
// of an entry in a fixed order:
//
//	Setup:  provision config → plan addresses → coordinator init + refresh
//	        → (guard: data) → register → forward platforms
//	        → activate services on 0→1 → watch entry updates → bind automations
//	Unload: unbind automations → unload platforms → (if ok) close connection,
//	        shut coordinator down, unregister → deactivate services on 1→0
//	Reload: take the domain-wide reload lock → Unload → grace → Setup
//
// Only an empty first refresh, a coordinator that cannot start and a failed
// platform forward are fatal to Setup; for Unload only the platform unload
// decides the result. Every other step is best-effort: its failure is
// recorded as an Outcome in the returned Report, logged, and the sequence
// continues.
//
// Services are reference counted by registry size: the Manager activates
// them when an insertion makes the registry size 1 and deactivates them
// when a removal makes it 0.
//
// # Thread Safety
//
// Registry and Manager are safe for concurrent use. Reloads are totally
// ordered by a single semaphore for the whole domain; Setup and Unload
// outside Reload are not serialised per entry, but Setup refuses an entry
// that is already registered.
package lifecycle
