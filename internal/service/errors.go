package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrWeakPassword       = errors.New("password does not meet the minimum length")
	// ErrServerError wraps store and signing failures. The cause is kept for
	// logs and never shown to clients.
	ErrServerError = errors.New("internal server error")
)
