// Package logger builds the structured slog loggers used by the server.
//
//   - logger.go: handler construction and runtime level changes
//   - context.go: request ID propagation through contexts
//   - redact.go: masking of credentials in log attributes
package logger
