package storage

import "errors"

// Storage errors for holder index backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a batch carries the same token
	// account twice. Upserts across batches replace by account address.
	ErrDuplicateKey = errors.New("duplicate key: token account repeated in batch")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
