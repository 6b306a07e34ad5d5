package apperr

import "errors"

var (
	// ErrNotFound is returned when a session or user does not exist. Callers use it
	// to tell "not logged in" apart from a store failure.
	ErrNotFound = errors.New("not found")
	// ErrIdentityConflict is returned when reconciliation is attempted on a session
	// that is already bound to a different user.
	ErrIdentityConflict = errors.New("session bound to a different identity")
	// ErrValidation is returned for disallowed input, e.g. a bad pfp file extension.
	ErrValidation = errors.New("validation failed")
	// ErrTransient marks store/broker unavailability; the operation may be retried.
	ErrTransient = errors.New("transient unavailability")
	// ErrFatalOperation marks an unrecognized queue operation. It indicates
	// producer/consumer version skew and must never be silently dropped.
	ErrFatalOperation = errors.New("unrecognized queue operation")
)
