// Package apperr defines the error taxonomy shared by every core component.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure the way callers need to branch on it.
type Kind string

const (
	NotFound     Kind = "not_found"
	InvalidInput Kind = "invalid_input"
	InvalidState Kind = "invalid_state"
	Parse        Kind = "parse"
	Network      Kind = "network"
	Auth         Kind = "auth"
	RateLimit    Kind = "rate_limit"
	Server       Kind = "server"
)

// Error wraps an underlying cause with a Kind and an optional field path.
type Error struct {
	Kind     Kind
	Field    string
	Provider string
	Status   int
	msg      string
	cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Field != "" {
		b.WriteString(" (")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	if e.msg != "" {
		b.WriteString(": ")
		b.WriteString(e.msg)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// New builds a bare Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Field builds a field-path-prefixed invalid_input error, per spec.md §7's
// propagation policy ("validation errors surface immediately with a
// field-path-prefixed message").
func Field(field, format string, args ...any) *Error {
	return &Error{Kind: InvalidInput, Field: field, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error without discarding it.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// NotFoundf is a convenience constructor for the common not_found case.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: NotFound, msg: fmt.Sprintf(format, args...)}
}
