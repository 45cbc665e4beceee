package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that a user with this email or id already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrTokenNotFound indicates that refresh token ledger entry was not found
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenRevoked indicates that the ledger entry is already revoked
	ErrTokenRevoked = errors.New("refresh token revoked")
)
