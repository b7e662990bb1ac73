// Package logging provides structured logging utilities for attachsort.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Handler construction from level and format settings
//   - PII sanitization (email anonymization)
//   - Consistent attribute naming for pipeline stages, messages and categories
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithStage(slog.Default(), "upload")
//	logger.Info("attachment uploaded",
//	    logging.MessageID(id),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("run started",
//	    logging.UserHash(email))
//
// # Security Considerations
//
//   - Mailbox addresses are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
//   - Attachment contents and extracted text are never logged
package logging
