package http

import (
	"net/http"

	"github.com/aussiebroadwan/shield/pkg/authsdk"
	"github.com/aussiebroadwan/shield/pkg/httpx"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// JWKSHandler publishes the public keys of keyset. Symmetric keys are never
// listed, so an HMAC-only keyset publishes an empty set.
func JWKSHandler(codec *jwtx.Codec, keyset string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := codec.JWKS(keyset)
		if err != nil {
			slogx.FromContext(r.Context()).Error("jwks lookup failed", "keyset", keyset, "error", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}
		if set.Keys == nil {
			set.Keys = []jwtx.JWK{}
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(set))
	}
}
