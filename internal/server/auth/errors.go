package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password and
	// non-active accounts alike. One error for all three: a login response
	// must not reveal whether an email is registered.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken indicates a registration attempt with an existing email
	ErrEmailTaken = errors.New("email already registered")
)
