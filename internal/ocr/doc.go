// Package ocr extracts plain text from attachment bytes.
//
// Images are sent to the Google Cloud Vision images:annotate endpoint with
// DOCUMENT_TEXT_DETECTION. PDF, TIFF and GIF documents go through
// files:annotate, which reads the first pages of the document inline. Plain
// text formats are decoded locally without a service call.
//
// Extraction never fails: unsupported types, service errors and empty
// annotations all produce an empty string, and the caller treats an empty
// string as "nothing to classify".
package ocr
