// Package apperr defines the error kinds shared by the storefront services.
// Domain packages declare their sentinel errors with New and the HTTP
// boundary classifies any returned error with KindOf.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unexpected Kind = iota
	NotFound
	Conflict
	Forbidden
	InvalidStateTransition
	ValidationFailure
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	case InvalidStateTransition:
		return "invalid_state_transition"
	case ValidationFailure:
		return "validation_failure"
	default:
		return "unexpected"
	}
}

// Error carries a Kind alongside a message and an optional cause.
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

func (e *Error) Unwrap() error { return e.Err }

// New returns a sentinel-style error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation wraps a cause as a ValidationFailure.
func Validation(message string, cause error) *Error {
	return &Error{Kind: ValidationFailure, Message: message, Err: cause}
}

// KindOf reports the kind of the first *Error in err's chain.
// Errors without a kind are Unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unexpected
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
