// Package logging provides structured logging utilities for applytrack.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "inbox.sync")
//	logger.Info("sync finished",
//	    logging.OwnerHash(owner),
//	    logging.Status(logging.StatusSuccess))
//
// # Security Considerations
//
//   - Owner ids and email addresses are hashed before they reach a log line
//   - Access and refresh tokens are never logged; use SanitizeToken
package logging
