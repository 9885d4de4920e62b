// Package entity is the registry of host entities (sensors, climate
// controls) created for configuration entries, plus the maintenance passes
// run when an entry is migrated to a newer schema version.
package entity
