// Package apperr defines the user-facing error taxonomy shared by the
// repository, service and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable machine code carried in the error envelope.
type Kind string

const (
	NotFound      Kind = "object_not_found"
	AlreadyExists Kind = "object_already_exists"
	Gone          Kind = "gone"
	Forbidden     Kind = "forbidden"
	BadRequest    Kind = "bad_request"
	Unavailable   Kind = "service_unavailable"
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case Gone:
		return http.StatusGone
	case Forbidden:
		return http.StatusForbidden
	case BadRequest:
		return http.StatusBadRequest
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain failure that is safe to show to API clients.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is makes errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

func NewNotFound(entity string, ident any) *Error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf("%s with given identifier - %v not found", entity, ident)}
}

func NewAlreadyExists(entity string, ident any) *Error {
	return &Error{Kind: AlreadyExists, Msg: fmt.Sprintf("%s with given identifier - %v already exists", entity, ident)}
}

func NewGone(resource string) *Error {
	return &Error{Kind: Gone, Msg: fmt.Sprintf("Resource %s has been permanently removed", resource)}
}

func NewForbidden() *Error {
	return &Error{Kind: Forbidden, Msg: "Access is forbidden"}
}

// NewBadRequest formats reason the way every 400 reads: "Bad request: <reason>".
func NewBadRequest(format string, args ...any) *Error {
	return &Error{Kind: BadRequest, Msg: "Bad request: " + fmt.Sprintf(format, args...)}
}

func NewUnavailable(format string, args ...any) *Error {
	return &Error{Kind: Unavailable, Msg: fmt.Sprintf(format, args...)}
}
