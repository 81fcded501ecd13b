// Package apperr defines the error kinds the engine surfaces to callers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	Forbidden
	// Busy is a transient refusal; the same request may succeed when retried.
	Busy
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	case Busy:
		return "busy"
	default:
		return "internal"
	}
}

// Error is a machine-checkable failure with a stable code and a human message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Kinder is implemented by errors that know their own kind without being an *Error.
type Kinder interface {
	ErrorKind() Kind
	ErrorCode() string
}

func (e *Error) ErrorKind() Kind   { return e.Kind }
func (e *Error) ErrorCode() string { return e.Code }

// Validationf builds an ad-hoc validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Code: "validation_failed", Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first Kinder in err's chain, Internal otherwise.
func KindOf(err error) Kind {
	var k Kinder
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return Internal
}

// CodeOf returns the code of the first Kinder in err's chain, "internal_error" otherwise.
func CodeOf(err error) string {
	var k Kinder
	if errors.As(err, &k) {
		return k.ErrorCode()
	}
	return "internal_error"
}
