// Package migration upgrades stored configuration entries to the current
// schema version.
//
// Version 2 moved entity unique ids to the prefixed naming scheme and
// removed the duplicates older releases left behind. Both clean-up passes
// are best-effort: a failing pass is logged and the entry still advances to
// TargetVersion, so no entry stays stuck below it.
package migration
