// Package engineerr defines the error taxonomy shared by the resolver,
// import pipeline, and cache: NotFound, Forbidden, Conflict, Service,
// IO, Cancelled, Precondition (spec §7). Callers branch on the
// taxonomy with errors.Is/As rather than string matching, following
// the plain-wrap style the rest of the engine uses (fmt.Errorf +
// %w), generalized here because several callers need to classify
// errors rather than just log and propagate them.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindService      Kind = "service"
	KindIO           Kind = "io"
	KindCancelled    Kind = "cancelled"
	KindPrecondition Kind = "precondition"
)

// Error is a classified engine error wrapping an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, engineerr.NotFound) style sentinels by
// comparing Kind, not identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// Forbiddenf builds a Forbidden error.
func Forbiddenf(format string, args ...any) error { return newf(KindForbidden, format, args...) }

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...any) error { return newf(KindConflict, format, args...) }

// Servicef builds a Service (transport/protocol) error.
func Servicef(cause error, format string, args ...any) error {
	return wrap(KindService, cause, format, args...)
}

// IOf builds an I/O error.
func IOf(cause error, format string, args ...any) error {
	return wrap(KindIO, cause, format, args...)
}

// Cancelledf builds a Cancelled error.
func Cancelledf(format string, args ...any) error { return newf(KindCancelled, format, args...) }

// Preconditionf builds a Precondition error, raised synchronously at
// an entry point (e.g. destination outside the workspace root).
func Preconditionf(format string, args ...any) error {
	return newf(KindPrecondition, format, args...)
}

// sentinels for errors.Is(err, engineerr.NotFound) comparisons against
// a Kind only (Message/Cause are ignored by Error.Is).
var (
	NotFound     = &Error{Kind: KindNotFound}
	Forbidden    = &Error{Kind: KindForbidden}
	Conflict     = &Error{Kind: KindConflict}
	Service      = &Error{Kind: KindService}
	IO           = &Error{Kind: KindIO}
	Cancelled    = &Error{Kind: KindCancelled}
	Precondition = &Error{Kind: KindPrecondition}
)

// KindOf extracts the Kind of err, if it (or something it wraps) is
// an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
