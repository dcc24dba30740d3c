// Package apperr defines the error taxonomy shared across the pipeline.
//
// Propagation policy: per-item failures (one file, one message) are logged
// and swallowed so a bad item never halts its batch; run-level failures
// (auth, missing local roots) abort the invocation.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed marks a failed CMS authentication. Terminal for the run.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrNotFound marks a missing remote group or message. Treated as
	// "nothing to do", never escalated.
	ErrNotFound = errors.New("not found")
	// ErrMalformedInput marks an export file with no parsable message line.
	ErrMalformedInput = errors.New("malformed input")
	// ErrPlaceholderSecret is returned when the anonymizer secret still
	// equals the shipped placeholder. The run is refused: the placeholder
	// provides no real confidentiality.
	ErrPlaceholderSecret = errors.New("anonymizer secret is the shipped placeholder")
	// ErrTokenExpired marks an attempt to reuse an expired CMS token.
	ErrTokenExpired = errors.New("auth token expired")
)

// RequestError wraps a failed remote call with enough context to classify
// it: Status 0 means the request never completed (network error); 4xx
// statuses other than 404 are validation rejections.
type RequestError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsNetwork reports whether the request failed before a response arrived.
func (e *RequestError) IsNetwork() bool { return e.Status == 0 }

// IsValidation reports whether the remote rejected the payload shape.
func (e *RequestError) IsValidation() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != 404
}
