// Package entry models configuration entries for Lambda heat pump
// installations and persists them in SQLite.
//
// An entry is the unit the lifecycle manager sets up, unloads, migrates and
// reloads. Its data bag carries the device counts (num_hps, num_boil,
// num_buff, num_sol, num_hc) and connection details; options carry tunables
// such as the polling interval. The schema version drives entry migration.
//
// Changing an entry's data or options notifies the update listeners
// registered for it; the integration uses this to reload the entry.
package entry
