package services

import "errors"

var (
	// ErrInvalidCredentials is returned when the identity provider rejects a login.
	ErrInvalidCredentials = errors.New("invalid-credentials")
	// ErrUnauthenticated is returned when the identity provider rejects a stored
	// credential. The session has been logged out when it is returned.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrProviderRejected is wrapped by IdentityProvider implementations when the
	// provider explicitly refuses a credential, as opposed to failing.
	ErrProviderRejected = errors.New("provider-rejected")
	ErrUpstream         = errors.New("upstream-error")
	ErrMissingOwner     = errors.New("missing-cache-owner")
)

// IsFatalAuth reports whether err requires the user to log in again.
func IsFatalAuth(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrInvalidCredentials)
}
