package goToken

import "errors"

var (
	// ErrInvalidToken is returned for any access or refresh token that fails
	// verification. The cause is never exposed to callers.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenReuseDetected is returned when a rotated or revoked refresh
	// token is presented again. The whole family has been revoked by then.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrUserNotFound is returned by UserProvider implementations for unknown
	// or inactive users.
	ErrUserNotFound = errors.New("user not found")
	// ErrStoreUnavailable is returned when Redis cannot serve an operation.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrSessionConflict is returned when a session id is already bound to
	// another user.
	ErrSessionConflict = errors.New("session bound to another user")
	// ErrSessionLimitExceeded is returned when a new family would exceed
	// Refresh.MaxActivePerUser.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrInvalidSessionID is returned when a session id is empty.
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrEngineNotReady   = errors.New("engine not initialized")
	ErrInvalidConfig    = errors.New("invalid config")
)
