package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Stage names used in errors, logs, metrics and spans.
const (
	StageScan     = "scan"
	StageFetch    = "fetch"
	StageDedup    = "dedup"
	StageUpload   = "upload"
	StageOCR      = "ocr"
	StageClassify = "classify"
	StageResolve  = "resolve"
	StageMove     = "move"
)

// ErrUnauthenticated is returned when no usable credentials are available.
// No pipeline work is done.
var ErrUnauthenticated = errors.New("user not authenticated")

// ValidationError reports a malformed request parameter
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamError wraps a failure of a mail or storage call
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(stage string, err error) error {
	return &UpstreamError{Stage: stage, Err: err}
}

// isUnauthorized reports whether err means the credentials were rejected,
// either by the API or by the token endpoint during a refresh.
func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized
	}
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}
