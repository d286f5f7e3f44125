package appointments

import (
	"context"
	"errors"
	"fmt"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/store"
)

// Kind is the stable, machine-readable class of a failure.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInvalidRole         Kind = "invalid_role"
	KindPastDate            Kind = "past_date"
	KindSlotConflict        Kind = "slot_conflict"
	KindInvalidTransition   Kind = "invalid_transition"
	KindLockoutWindow       Kind = "lockout_window"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindInvalidArgument     Kind = "invalid_argument"
	KindIdempotencyConflict Kind = "idempotency_conflict"
	KindInternal            Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return string(e.Kind) + ": " + e.Msg
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, appointments.ErrSlotConflict).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidRole         = &Error{Kind: KindInvalidRole}
	ErrPastDate            = &Error{Kind: KindPastDate}
	ErrSlotConflict        = &Error{Kind: KindSlotConflict}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrLockoutWindow       = &Error{Kind: KindLockoutWindow}
	ErrStorageUnavailable  = &Error{Kind: KindStorageUnavailable}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrIdempotencyConflict = &Error{Kind: KindIdempotencyConflict}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func invalidArgument(format string, args ...any) *Error {
	return newError(KindInvalidArgument, format, args...)
}

// KindOf returns the kind carried by err, or "" when err is not a service error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the caller may safely retry the operation.
func Retryable(err error) bool {
	return KindOf(err) == KindStorageUnavailable
}

// classify turns store, domain and context errors into service errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Msg: "appointment not found", Err: err}
	case errors.Is(err, store.ErrConflict):
		return &Error{Kind: KindSlotConflict, Msg: "time slot is no longer available", Err: err}
	case errors.Is(err, store.ErrIdempotencyConflict):
		return &Error{Kind: KindIdempotencyConflict, Msg: "idempotency key was used for a different booking", Err: err}
	case errors.Is(err, domain.ErrInvalidTransition):
		return &Error{Kind: KindInvalidTransition, Err: err}
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return &Error{Kind: KindStorageUnavailable, Err: err}
	}
	return &Error{Kind: KindInternal, Err: err}
}
