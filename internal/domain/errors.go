package domain

import "errors"

// Domain errors returned by backends. They can be checked with errors.Is.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("scistore: record not found")

	// ErrBlobNotFound is returned when a blob does not exist.
	ErrBlobNotFound = errors.New("scistore: blob not found")

	// ErrClosed is returned by a backend after Close.
	ErrClosed = errors.New("scistore: backend closed")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("scistore: invalid configuration")
)
