package auth

import "errors"

var (
	// ErrUnauthenticated covers missing, malformed, expired and unknown credentials.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrUnavailable means credentials could not be checked because storage failed.
	ErrUnavailable = errors.New("auth: unavailable")
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)
