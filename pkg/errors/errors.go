package errors

import "errors"

var (
	// Fatal configuration failure: no signing key material is available.
	ErrKeyUnavailable = errors.New("signing key unavailable")

	// Expected rotation outcomes. Never exposed to clients directly;
	// the token service collapses all of them into ErrRefreshFailed.
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenExpired  = errors.New("refresh token expired")
	ErrTokenReused   = errors.New("refresh token reuse detected")

	// Generic client-facing refresh failure, deliberately not saying which
	// of the rotation outcomes occurred.
	ErrRefreshFailed = errors.New("refresh failed")

	ErrCSRFValidationFailed = errors.New("csrf validation failed")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMemberNotFound     = errors.New("member not found")
	ErrNilToken           = errors.New("refresh token is nil")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
)
