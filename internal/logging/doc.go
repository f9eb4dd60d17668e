// Package logging provides slog construction with console and JSON handlers
// plus the attribute helpers and field keys shared across magpie components.
package logging
