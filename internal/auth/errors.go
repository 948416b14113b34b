package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrWeakPassword       = errors.New("auth: password does not meet policy")
	ErrDuplicateEmail     = errors.New("auth: email is already registered")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrNotFound           = errors.New("auth: not found")

	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenInvalid   = errors.New("auth: invalid token")
	ErrWrongTokenType = errors.New("auth: wrong token type")
	ErrTokenRevoked   = errors.New("auth: token revoked")

	ErrSessionExpired  = errors.New("auth: session expired")
	ErrSessionNotFound = errors.New("auth: session not found")

	ErrPermissionDenied = errors.New("auth: permission denied")

	ErrProviderNotConfigured  = errors.New("auth: oauth provider not configured")
	ErrProviderExchangeFailed = errors.New("auth: oauth code exchange failed")
	ErrProviderNoEmail        = errors.New("auth: oauth provider returned no usable email")
	ErrInvalidOAuthState      = errors.New("auth: oauth state missing, expired or reused")

	ErrTooManyAttempts = errors.New("auth: too many login attempts")
)
