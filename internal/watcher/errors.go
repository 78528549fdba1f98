package watcher

import (
	"errors"
	"fmt"

	"github.com/roach88/recordsync/internal/ir"
)

// Error represents a failure detected by the watcher.
//
// Errors include:
//   - Connection: the store could not be reached at subscribe time
//   - Shape mismatch: a delivered payload is not a mapping
//   - Write failure: a repair write was rejected by the store
//
// Only connection errors are returned to callers. The other kinds are
// logged and counted.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Collection identifies the affected collection.
	Collection string

	// Key identifies the affected record, if any.
	Key string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes watcher errors.
type ErrorCode string

const (
	// ErrCodeConnection indicates the store was unreachable.
	ErrCodeConnection ErrorCode = "CONNECTION"

	// ErrCodeShapeMismatch indicates a payload that is not a mapping.
	ErrCodeShapeMismatch ErrorCode = "SHAPE_MISMATCH"

	// ErrCodeWriteFailure indicates a repair write failed.
	ErrCodeWriteFailure ErrorCode = "WRITE_FAILURE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Key != "" {
		msg = fmt.Sprintf("%s (collection=%s, key=%s)", msg, e.Collection, e.Key)
	} else if e.Collection != "" {
		msg = fmt.Sprintf("%s (collection=%s)", msg, e.Collection)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsConnectionError returns true if err is a connection error.
// Uses errors.As to handle wrapped errors.
func IsConnectionError(err error) bool {
	return hasCode(err, ErrCodeConnection)
}

// IsShapeMismatch returns true if err is a shape mismatch.
func IsShapeMismatch(err error) bool {
	return hasCode(err, ErrCodeShapeMismatch)
}

// IsWriteFailure returns true if err is a write failure.
func IsWriteFailure(err error) bool {
	return hasCode(err, ErrCodeWriteFailure)
}

func hasCode(err error, code ErrorCode) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Code == code
	}
	return false
}

// NewConnectionError creates an Error for an unreachable store.
func NewConnectionError(collection string, err error) *Error {
	return &Error{
		Code:       ErrCodeConnection,
		Message:    "store unreachable",
		Collection: collection,
		Err:        err,
	}
}

// NewShapeMismatch creates an Error for a payload that cannot be checked.
func NewShapeMismatch(collection, key string, err error) *Error {
	return &Error{
		Code:       ErrCodeShapeMismatch,
		Message:    "payload is not a mapping",
		Collection: collection,
		Key:        key,
		Err:        err,
	}
}

// NewWriteFailure creates an Error for a failed repair write.
func NewWriteFailure(collection, key string, action ir.Action, err error) *Error {
	return &Error{
		Code:       ErrCodeWriteFailure,
		Message:    fmt.Sprintf("%s failed", action),
		Collection: collection,
		Key:        key,
		Err:        err,
	}
}
