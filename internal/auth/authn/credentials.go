package authn

import "strings"

// Credentials is what a caller presents to an authenticator. Each strategy
// reads only the fields it needs.
type Credentials struct {
	Email    string
	Username string
	Password string

	// Token is a bearer token, a JWT, or the "key:signature" part of an
	// HMAC-SHA256 Authorization header.
	Token string
	// Body is the signed request body for HMAC authentication.
	Body []byte
	// Keyset selects the JWT keyset; empty uses the configured default.
	Keyset string

	// Remember asks the session authenticator for a remember-me cookie.
	Remember bool
}

// identifier returns the login identifier for records and lookups.
func (c Credentials) identifier() string {
	if c.Email != "" {
		return normalizeEmail(c.Email)
	}
	return strings.TrimSpace(c.Username)
}

// RequestInfo is the per-request context the dispatcher hands to strategies.
type RequestInfo struct {
	IP        string
	UserAgent string

	// SessionID and RememberToken come from cookies.
	SessionID     string
	RememberToken string

	// Authorization is the raw Authorization header.
	Authorization string
	Body          []byte
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
