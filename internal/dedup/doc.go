// Package dedup detects attachments whose content has already been filed.
//
// Content is identified by a SHA-256 digest of the raw attachment bytes. An
// Index records digests per mailbox; Claim is the atomic check-then-record
// operation the pipeline relies on so that two concurrent attachments with the
// same content are never both treated as new.
//
// Two implementations are provided:
//   - MemoryIndex: process-local, suitable for a single run or tests
//   - RedisIndex: persisted across runs and processes using SETNX
package dedup
