// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client and server layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication (bad credentials or a rejected token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller is authenticated but not allowed to touch the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation indicates the request was rejected as malformed or incomplete.
	ErrValidation = errors.New("validation failed")

	// ErrTransient indicates a network failure, timeout or 5xx answer.
	ErrTransient = errors.New("transient failure")

	// ErrNotAuthenticated is returned locally when an operation needs a session and there is none.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnsupported indicates a format or geometry type that is not handled.
	ErrUnsupported = errors.New("unsupported")
)
