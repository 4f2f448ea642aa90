package domain

import "errors"

var (
	// ErrNotFound is returned when an operation requires an existing record.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned by Create when the username is taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrInvalidRole is returned for roles outside the enumerated set.
	ErrInvalidRole = errors.New("invalid role")

	// ErrNotImplemented marks a capability the active backend does not provide.
	ErrNotImplemented = errors.New("storage capability not implemented")
)
