package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorUnauthorized       = errors.New("unauthorized")
	ErrPreconditionFailed   = errors.New("precondition failed")
	ErrConfirmationRequired = errors.New("confirmation required")

	// Input errors.
	ErrMalformedInput    = errors.New("malformed input")
	ErrInvalidRecord     = errors.New("invalid record")
	ErrInvalidCollection = errors.New("invalid collection")
	ErrInvalidWrite      = errors.New("invalid write")

	// User registry errors.
	ErrInvalidUser     = errors.New("invalid user")
	ErrMissingPassword = errors.New("missing password")
	ErrWeakPassword    = errors.New("weak password")
)
