// Package apperr carries the error kinds surfaced by the planner core.
// Callers switch on the kind, never on the concrete message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	NotFound
	Unauthorized
	Conflict
	Invalid
	Transient
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case Conflict:
		return "conflict"
	case Invalid:
		return "invalid"
	case Transient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is a kind plus a human readable message, optionally wrapping a cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches a kind to err. A nil err stays nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Invalidf(format string, args ...any) *Error {
	return New(Invalid, fmt.Sprintf(format, args...))
}

func Unauthorizedf(format string, args ...any) *Error {
	return New(Unauthorized, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the outermost *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a fresh transaction may succeed where this one failed.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == Conflict || k == Transient
}

// HTTPStatus maps a kind to the status code the transport layer should use.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusForbidden
	case Invalid:
		return http.StatusBadRequest
	case Conflict, Transient:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

const (
	msgNotFound = "not found"
	msgConflict = "data was modified by another request, please try again"
	msgInternal = "an unexpected error occurred, please try again"
)

// UserMessage is the text safe to show an end user. Ownership failures read
// as "not found" so they do not reveal that the resource exists.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return msgInternal
	}
	switch e.Kind {
	case NotFound, Unauthorized:
		return msgNotFound
	case Conflict, Transient:
		return msgConflict
	case Invalid:
		return e.Message
	default:
		return msgInternal
	}
}
