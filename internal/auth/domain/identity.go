package domain

import (
	"fmt"
	"slices"
	"time"
)

// IdentityType is the closed set of credential kinds a user can hold.
type IdentityType string

const (
	// EmailPassword: Secret is the email, Secret2 the password hash.
	EmailPassword IdentityType = "email_password"
	// AccessToken: Secret is the SHA-256 fingerprint of the bearer token.
	AccessToken IdentityType = "access_token"
	// HMACToken: Secret is the public key id, Secret2 the sealed shared secret.
	HMACToken IdentityType = "hmac_sha256"
	// MagicLink: Secret is the SHA-256 fingerprint of the link token.
	MagicLink IdentityType = "magic-link"
	// Email2FA: Secret is a short numeric code.
	Email2FA IdentityType = "email_2fa"
	// EmailActivate: Secret is a short numeric code.
	EmailActivate IdentityType = "email_activate"
	// TOTP: Secret is the base32 shared secret.
	TOTP IdentityType = "totp"
)

var identityTypes = []IdentityType{EmailPassword, AccessToken, HMACToken, MagicLink, Email2FA, EmailActivate, TOTP}

// ParseIdentityType validates s against the known identity types.
func ParseIdentityType(s string) (IdentityType, error) {
	t := IdentityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown identity type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known identity types.
func (t IdentityType) Valid() bool { return slices.Contains(identityTypes, t) }

// Singleton reports whether a user holds at most one identity of this type.
// Creating a new one replaces the old.
func (t IdentityType) Singleton() bool {
	return t != AccessToken && t != HMACToken
}

// HashedSecret reports whether Secret is stored as a fingerprint and must be
// looked up by hashing the presented value.
func (t IdentityType) HashedSecret() bool {
	return t == AccessToken || t == MagicLink
}

// OneTimeCode reports whether the identity is consumed on first successful use.
func (t IdentityType) OneTimeCode() bool {
	return t == MagicLink || t == Email2FA || t == EmailActivate
}

// Identity is a credential belonging to a user.
type Identity struct {
	ID         string
	UserID     string
	Type       IdentityType
	Name       string // label for tokens, e.g. "ci-deploy"
	Secret     string
	Secret2    string
	Scopes     []string
	LastUsedIP string
	Expires    *time.Time
	ForceReset bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsExpired reports whether the identity carries an expiry before now.
func (i *Identity) IsExpired(now time.Time) bool {
	return i.Expires != nil && !now.Before(*i.Expires)
}

// Can reports whether the token grants scope. "*" grants everything.
func (i *Identity) Can(scope string) bool {
	return slices.Contains(i.Scopes, "*") || slices.Contains(i.Scopes, scope)
}

// CantScope is !Can(scope).
func (i *Identity) CantScope(scope string) bool { return !i.Can(scope) }
