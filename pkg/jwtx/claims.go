package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is used by Encode when neither a ttl nor an exp claim is given.
const DefaultTTL = time.Hour

// Claims is the payload of a token. Registered claims use their RFC 7519
// names; anything else is carried through untouched.
type Claims map[string]any

// Subject returns the "sub" claim.
func (c Claims) Subject() string {
	s, _ := jwt.MapClaims(c).GetSubject()
	return s
}

// Issuer returns the "iss" claim.
func (c Claims) Issuer() string {
	s, _ := jwt.MapClaims(c).GetIssuer()
	return s
}

// Audience returns the "aud" claim whether it was encoded as a string or an array.
func (c Claims) Audience() []string {
	aud, _ := jwt.MapClaims(c).GetAudience()
	return aud
}

// ID returns the "jti" claim.
func (c Claims) ID() string {
	s, _ := c["jti"].(string)
	return s
}

// IssuedAt returns the "iat" claim, or the zero time.
func (c Claims) IssuedAt() time.Time {
	d, _ := jwt.MapClaims(c).GetIssuedAt()
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

// ExpiresAt returns the "exp" claim, or the zero time.
func (c Claims) ExpiresAt() time.Time {
	d, _ := jwt.MapClaims(c).GetExpirationTime()
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

// ValidateIssuer checks the issuer matches expected. Empty means don't care.
func (c Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer() != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that at least one expected audience is present.
func (c Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	aud := c.Audience()
	for _, want := range expected {
		if slices.Contains(aud, want) {
			return nil
		}
	}
	return ErrAudience
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// numericTime accepts the shapes a caller may reasonably put into a time
// claim and returns it as a time.
func numericTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *jwt.NumericDate:
		return t.Time, nil
	case jwt.NumericDate:
		return t.Time, nil
	case int64:
		return time.Unix(t, 0), nil
	case int:
		return time.Unix(int64(t), 0), nil
	case float64:
		return time.Unix(int64(t), 0), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(n, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported time value %T", ErrInvalidClaim, v)
	}
}
