package http

import (
	"net/http"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/pkg/authsdk"
)

// resultError maps a failed result to its HTTP error. Unknown users are
// reported as invalid credentials.
func resultError(res authn.Result) *authsdk.APIError {
	status := http.StatusUnauthorized
	switch res.Reason() {
	case authn.UserBanned, authn.UserInactive:
		status = http.StatusForbidden
	case authn.MailDeliveryFailed:
		status = http.StatusServiceUnavailable
	case authn.ActionPending:
		status = http.StatusAccepted
	}

	msg := res.Message()
	if banMsg, ok := res.Extra().(string); ok && res.Reason() == authn.UserBanned && banMsg != "" {
		msg = banMsg
	}
	return authsdk.NewAPIError(status, res.Reason().PublicCode(), msg)
}
