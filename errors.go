package vectis

import (
	"fmt"
)

// An ErrorKind classifies the failures of the entity core. All kinds are
// synchronous and non-retryable: the caller must fix its input.
type ErrorKind string

const (
	// KindFrozen reports a mutation attempted on a frozen entity.
	KindFrozen ErrorKind = "frozen violation"
	// KindTypeMismatch reports an item that exists but is not of the requested type.
	KindTypeMismatch ErrorKind = "type mismatch"
	// KindUnknownProperty reports an event or wire field that has no declared
	// counterpart on the target type, or that addresses a read-only field.
	KindUnknownProperty ErrorKind = "unknown property"
	// KindUnknownDiscriminator reports a type tag missing from the registry.
	KindUnknownDiscriminator ErrorKind = "unknown discriminator"
	// KindMalformedWireData reports structurally invalid input, such as a
	// document whose discriminator is missing or out of position.
	KindMalformedWireData ErrorKind = "malformed wire data"
	// KindInvalidTransition reports an event that does not apply to the
	// lifecycle state of its object (for example, updating an absent object).
	KindInvalidTransition ErrorKind = "invalid transition"
)

// Error is the error type returned by every operation of this module that fails
// for one of the reasons listed by ErrorKind.
//
// Use errors.Is with one of the sentinel values (e.g. ErrFrozen) to test the
// kind of a returned error.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinel values for use with errors.Is.
var (
	ErrFrozen               = &Error{Kind: KindFrozen, Message: "entity is frozen"}
	ErrTypeMismatch         = &Error{Kind: KindTypeMismatch, Message: "item is not of the requested type"}
	ErrUnknownProperty      = &Error{Kind: KindUnknownProperty, Message: "no such property"}
	ErrUnknownDiscriminator = &Error{Kind: KindUnknownDiscriminator, Message: "no such discriminator"}
	ErrMalformedWireData    = &Error{Kind: KindMalformedWireData, Message: "malformed wire data"}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
)

// Errorf returns an *Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind that wraps an underlying cause.
func Wrap(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}
