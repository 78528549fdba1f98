package store

import "errors"

var (
	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrNotFound is returned by Get when the child does not exist.
	ErrNotFound = errors.New("child not found")
)
