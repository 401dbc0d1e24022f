// Package config loads and validates skipscan configuration.
//
// Runtime settings (paths, tool binaries, worker counts, log output) come
// from a TOML file with sensible defaults. Detection tuning comes from a
// registry of named show-type profiles; a profile is selected once per run
// and may be narrowed field-by-field through explicit overrides, never
// mutated afterwards.
package config
