package validation

import (
	"errors"
	"fmt"
)

// Kind classifies a mutation failure for callers that need more than the message.
type Kind string

// Error kinds reported by validators and mutations.
const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindReference  Kind = "reference"
)

// Error is a user-facing failure produced before any write is attempted, or
// translated from a store constraint. Error returns the message only.
type Error struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Invalid builds a validation error for field.
func Invalid(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// Conflict builds a conflict error for field.
func Conflict(field, message string) *Error {
	return &Error{Kind: KindConflict, Field: field, Message: message}
}

// Reference builds an unresolved-reference error for field.
func Reference(field, message string) *Error {
	return &Error{Kind: KindReference, Field: field, Message: message}
}

// KindOf reports the kind of err when it wraps an *Error.
func KindOf(err error) (Kind, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Kind, true
	}
	return "", false
}

// Invalidf is Invalid with a formatted message.
func Invalidf(field, format string, args ...any) *Error {
	return Invalid(field, fmt.Sprintf(format, args...))
}
