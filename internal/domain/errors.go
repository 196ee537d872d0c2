package domain

import "errors"

// Errors shared by the client shell, the REST client and the reference
// backend. The REST client maps response codes back onto them, so callers
// on both sides test with errors.Is.
var (
	// ErrNotLoggedIn is returned when an operation needs a session and the
	// cookie is missing or expired.
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrForbidden    = errors.New("forbidden")
	ErrEmptyMessage = errors.New("message is empty")
	ErrNotFound     = errors.New("not found")
	// ErrInvalidPayload wraps decode failures of REST bodies and socket frames.
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
