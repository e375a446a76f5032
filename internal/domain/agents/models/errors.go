package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "invalid_input"
	KindConfigurationMissing ErrorKind = "configuration_missing"
	KindBackendUnavailable   ErrorKind = "backend_unavailable"
	KindBackendRejected      ErrorKind = "backend_rejected"
	KindRunFailed            ErrorKind = "run_failed"
	KindRunTimedOut          ErrorKind = "run_timed_out"
	KindCleanupFailed        ErrorKind = "cleanup_failed"
	KindCancelled            ErrorKind = "cancelled"
)

// Error is the typed failure returned across the agent pipeline.
type Error struct {
	Kind   ErrorKind
	Op     string
	Reason string
	Err    error
}

var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
	ErrBackendUnavailable   = &Error{Kind: KindBackendUnavailable}
	ErrBackendRejected      = &Error{Kind: KindBackendRejected}
	ErrRunFailed            = &Error{Kind: KindRunFailed}
	ErrRunTimedOut          = &Error{Kind: KindRunTimedOut}
	ErrCleanupFailed        = &Error{Kind: KindCleanupFailed}
	ErrCancelled            = &Error{Kind: KindCancelled}
)

func NewError(kind ErrorKind, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrRunTimedOut)
// works regardless of Op or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
