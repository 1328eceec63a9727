package httpx

import (
	"net"
	"net/http"
	"strings"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. It reports false when the header is absent or uses another scheme.
func BearerToken(r *http.Request) (string, bool) {
	return SchemeCredentials(r, "Bearer")
}

// SchemeCredentials returns the credentials following scheme in the
// Authorization header. The scheme comparison is case-insensitive.
func SchemeCredentials(r *http.Request, scheme string) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) <= len(scheme) || !strings.EqualFold(h[:len(scheme)], scheme) || h[len(scheme)] != ' ' {
		return "", false
	}
	cred := strings.TrimSpace(h[len(scheme):])
	return cred, cred != ""
}

// ClientIP returns the client address, preferring X-Forwarded-For and
// X-Real-IP for proxied requests.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
