package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting an immutable record
	// whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrOutOfOrder is returned when a price sample does not advance
	// the (token, source) stream's timestamp.
	ErrOutOfOrder = errors.New("price sample out of order for source stream")

	// ErrStaleWrite is returned when an upsert carries an older
	// timestamp than the stored row. Canonical rows are never rolled
	// back to an older fetch.
	ErrStaleWrite = errors.New("stale write: stored row is newer")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
