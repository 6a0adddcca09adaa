package uploader

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// ErrorKind classifies an upload error for presentation and retry decisions.
type ErrorKind string

const (
	// KindValidation covers client- or server-rejected input. Recoverable by
	// the user correcting the input.
	KindValidation ErrorKind = "validation"
	// KindNetwork covers connectivity and reachability failures. Recoverable
	// by retrying.
	KindNetwork ErrorKind = "network"
	// KindServer covers auth and availability failures on the backend.
	KindServer ErrorKind = "server"
	// KindTransferFailure covers failures of the byte transfer itself.
	// Recoverable by retrying with a fresh destination.
	KindTransferFailure ErrorKind = "transfer_failure"
	// KindInvalidResponse covers contract violations by the negotiation
	// endpoint.
	KindInvalidResponse ErrorKind = "invalid_response"
	// KindDuplicate means the server already holds the file's content. The
	// record is removed rather than retried.
	KindDuplicate ErrorKind = "duplicate"
	// KindUnknown wraps anything that is not a typed upload error.
	KindUnknown ErrorKind = "unknown"
)

// Error is the typed error surfaced by every collaborator in the upload
// pipeline. It is plain data: callers render Kind, Message and Details and
// never need to inspect anything deeper.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("uploader: %s (kind: %s, details: %s)", e.Message, e.Kind, e.Details)
	}
	return fmt.Sprintf("uploader: %s (kind: %s)", e.Message, e.Kind)
}

// NewError creates a typed upload error
func NewError(kind ErrorKind, message, details string) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// AsError coerces any error into a typed *Error, wrapping untyped errors
// as KindUnknown so the presentation layer always receives plain data.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUnknown, Message: "Something went wrong", Details: err.Error()}
}

// IsRetryable returns true if the error might be resolved by retrying
func (e *Error) IsRetryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindTransferFailure
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindValidation
}

// IsNetworkError checks if an error is a connectivity error
func IsNetworkError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNetwork
}

// IsServerError checks if an error originated on the backend
func IsServerError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindServer
}

// IsDuplicateError checks if the server reported a content collision
func IsDuplicateError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindDuplicate
}

// ErrorEntry is one item in the collection-level error log. Entries carry
// add-time and validation failures; per-file terminal failures live on the
// FileRecord instead.
type ErrorEntry struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Err  *Error    `json:"error"`
}

func newErrorEntry(err *Error) ErrorEntry {
	return ErrorEntry{ID: xid.New().String(), Time: time.Now(), Err: err}
}
