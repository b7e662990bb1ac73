// Package pipeline files email attachments into category folders.
//
// A run scans the mailbox for messages with attachments, expands each
// message into its attachment parts and drives every attachment through a
// fixed sequence of stages:
//
//	Fetched -> Hashed -> Unique -> Uploaded -> TextExtracted -> Classified -> FolderResolved -> Moved -> Done
//	                  \-> Duplicate
//
// Byte-identical attachments are detected with a content hash claimed in a
// dedup.Index before anything is uploaded, so re-running over the same
// mailbox never creates duplicate files. Text extraction and classification
// degrade to category.Uncategorized instead of failing. Failures in the
// other stages end that attachment's run in a terminal failure state
// without affecting its siblings.
//
// Attachments are processed concurrently with a bounded worker count. When
// the run deadline passes no further attachments are started; attachments
// already in flight finish under their own stage timeouts and the report is
// marked incomplete.
package pipeline
