package service

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the transport layer
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a classified service failure. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrValidation builds a Validation error
func ErrValidation(format string, args ...interface{}) error {
	return newError(KindValidation, format, args...)
}

// ErrNotFound builds a NotFound error
func ErrNotFound(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

// ErrForbidden builds a Forbidden error
func ErrForbidden(format string, args ...interface{}) error {
	return newError(KindForbidden, format, args...)
}

// ErrConflict builds a Conflict error
func ErrConflict(format string, args ...interface{}) error {
	return newError(KindConflict, format, args...)
}

// ErrUpstream wraps a failure of an external collaborator
func ErrUpstream(err error, format string, args ...interface{}) error {
	e := newError(KindUpstream, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of err, KindInternal for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
