// Package logging assembles structured slog loggers and attribute helpers
// shared by the serialwatch library and CLI.
//
// It owns the console and JSON handlers, resolves the "auto" format against
// the attached terminal, and provides component loggers plus a no-op logger
// so library types can log unconditionally without forcing callers to wire
// a handler.
package logging
