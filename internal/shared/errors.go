package shared

import "errors"

var (
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrIdempotencyKeyRequired is returned for blank keys.
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	// ErrIdempotencyModuleRequired is returned for blank module names.
	ErrIdempotencyModuleRequired = errors.New("idempotency module required")
)
