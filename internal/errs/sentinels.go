// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed request fields.
	ErrValidation = errors.New("validation failed")

	// ErrBadRequest indicates a well-formed request that makes no sense for the current state.
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidTransition indicates an account lifecycle change that is not allowed.
	ErrInvalidTransition = errors.New("invalid account state transition")

	// ErrInternal indicates an unexpected failure (storage, hashing, ...).
	ErrInternal = errors.New("internal error")
)
