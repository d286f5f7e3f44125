package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	// ErrUnavailable marks transient infrastructure failures (timeouts, lost
	// connections, serialization aborts). Only these are safe to retry.
	ErrUnavailable = errors.New("storage unavailable")
)
