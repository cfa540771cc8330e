// Package logger provides slog attribute helpers used across the SDK.
//
// Helpers follow the empty Attr pattern: passing a nil error or empty string
// yields an attribute that slog silently drops, so call sites never need nil
// checks:
//
//	log.Debug("core call failed", logger.Error(err), logger.Host(host))
package logger
