package guess

import "errors"

var (
	// ErrGuessInFlight means the user already has an unsettled guess. Not retried.
	ErrGuessInFlight = errors.New("previous guess is still pending")
	// ErrReferenceUnavailable means the reference value could not be fetched.
	ErrReferenceUnavailable = errors.New("reference value unavailable")
	// ErrUserNotFound means the caller has no guess state row.
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidDirection = errors.New("direction must be up or down")
)
