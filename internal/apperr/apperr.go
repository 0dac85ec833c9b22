package apperr

import (
	"fmt"
	"time"

	cr "github.com/cockroachdb/errors"
)

// Kind classifies an error for callers deciding whether to queue, wait or retry.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindForbidden       Kind = "forbidden"
	KindInvalidState    Kind = "invalid_state"
	KindRateLimited     Kind = "rate_limited"
	KindInvalidArgument Kind = "invalid_argument"
	KindInternal        Kind = "internal"
)

// Error is the error type returned across the queue and usage operations.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	RetryAfter time.Duration
	err        error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error     { return newErr(KindNotFound, code, msg) }
func Conflict(code, msg string) *Error     { return newErr(KindConflict, code, msg) }
func Forbidden(code, msg string) *Error    { return newErr(KindForbidden, code, msg) }
func InvalidState(code, msg string) *Error { return newErr(KindInvalidState, code, msg) }
func Invalid(code, msg string) *Error      { return newErr(KindInvalidArgument, code, msg) }

// RateLimited carries the remaining wait so callers can render a retry hint.
func RateLimited(code, msg string, retryAfter time.Duration) *Error {
	e := newErr(KindRateLimited, code, msg)
	e.RetryAfter = retryAfter
	return e
}

// Internal wraps a persistence or transport failure. Errors that are already
// classified pass through untouched.
func Internal(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if cr.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindInternal, Code: "internal", Message: msg, err: cr.Wrap(err, msg)}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if cr.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// CodeOf returns the machine code of err, or "internal".
func CodeOf(err error) string {
	var ae *Error
	if cr.As(err, &ae) {
		return ae.Code
	}
	return "internal"
}

// StackLines formats err with its recorded stack for logging.
func StackLines(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%+v", err)
}
