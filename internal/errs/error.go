package errs

import (
	"errors"
	"strings"
)

// Error is an outcome of an account operation carrying the message shown to the caller.
// Kind is always one of the sentinels above, so errors.Is(err, ErrNotFound) keeps working.
type Error struct {
	Kind    error
	Message string
	// Fields holds per-field messages for ErrValidation and ErrAlreadyExists.
	Fields []string
	// Err is the underlying cause; it is logged, never shown.
	Err error
}

// New creates an outcome of the given kind with a user-visible message.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation creates an ErrValidation outcome from per-field messages.
func Validation(fields ...string) *Error {
	return &Error{Kind: ErrValidation, Message: strings.Join(fields, " "), Fields: fields}
}

// Conflict creates an ErrAlreadyExists outcome from per-field messages.
func Conflict(fields ...string) *Error {
	return &Error{Kind: ErrAlreadyExists, Message: strings.Join(fields, " "), Fields: fields}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: ErrInternal, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Is matches the sentinel kind.
func (e *Error) Is(target error) bool {
	return e != nil && e.Kind == target
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf reports the sentinel kind of err, defaulting to ErrInternal.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != nil {
		return e.Kind
	}
	for _, k := range []error{ErrValidation, ErrNotFound, ErrUnauthorized, ErrAlreadyExists, ErrBadRequest, ErrInvalidTransition} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// MessageOf returns the user-visible message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// FieldsOf returns per-field messages when err carries them.
func FieldsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
