// Package logging builds slog loggers with skipscan's output conventions.
//
// Two handler formats are supported: a pretty console handler that promotes
// the component attribute into the message prefix, and a JSON handler with
// compact key names for log aggregation. Helper aliases keep call sites
// terse and consistent across packages.
package logging
