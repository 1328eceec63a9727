package authn

import "errors"

var (
	// ErrConfiguration marks wiring mistakes: a missing store, an unknown
	// second factor, a keyset that does not exist.
	ErrConfiguration = errors.New("authn: configuration error")

	ErrUnknownAuthenticator = errors.New("authn: unknown authenticator")

	// ErrNoPendingAction is returned when an action is verified on a session
	// that is not waiting for one.
	ErrNoPendingAction = errors.New("authn: no pending action")
)
