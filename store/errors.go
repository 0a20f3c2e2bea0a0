package store

import "errors"

var (
	// ErrNotFound is returned when a row identity does not exist.
	ErrNotFound = errors.New("row not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store is closed")
)
