package service

import "errors"

var (
	// ErrInvalidCredentials is the single answer to every failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrWrongPassword is returned by ChangePassword when the current
	// password does not match.
	ErrWrongPassword = errors.New("current password is incorrect")

	// ErrRegistrationDisabled is returned while self-registration is off.
	ErrRegistrationDisabled = errors.New("registration is disabled")

	// ErrValidation wraps every input validation failure.
	ErrValidation = errors.New("validation failed")
)
