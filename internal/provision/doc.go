// Package provision manages lambda_wp_config.yaml, the user-editable file
// in the host configuration directory that lists disabled registers,
// sensor name overrides and cycling counter offsets.
//
// The file is created from a template the first time an entry is set up and
// never overwritten afterwards. Older files without a cycling_offsets
// section are upgraded in place after a .backup copy is written.
package provision
