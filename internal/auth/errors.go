package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for any login failure that must not
	// reveal whether the account exists.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTooManyAttempts is returned when the login attempt counter for the
	// (address, email) pair exceeds the configured threshold.
	ErrTooManyAttempts = errors.New("auth: too many attempts")

	// ErrForbidden is returned when an authenticated user lacks access to
	// the requested clinic or permission.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrClinicRequired is returned when a clinic-scoped check is requested
	// without a clinic id to evaluate.
	ErrClinicRequired = errors.New("auth: clinic id required")

	// ErrTokenExpired marks a token whose validity window has passed. It is
	// distinct from ErrInvalidToken so clients can attempt a silent refresh.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrInvalidToken marks a malformed, forged or wrong-type token.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidSession is returned when a refresh token is no longer the
	// one held by the server-side session (superseded or revoked).
	ErrInvalidSession = errors.New("auth: invalid session")

	// ErrPasswordChanged marks a token minted before the user's most recent
	// password change.
	ErrPasswordChanged = errors.New("auth: password changed")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("auth: not found")

	// ErrInvalidInput marks malformed caller input.
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrUnavailable is returned when a backing store cannot be reached.
	// Authorization fails closed: this is never mapped to success.
	ErrUnavailable = errors.New("auth: store unavailable")
)
