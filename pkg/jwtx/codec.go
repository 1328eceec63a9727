package jwtx

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Options configures a Codec.
type Options struct {
	// Issuer is written to "iss" when the caller does not supply one and,
	// when set, required on decode.
	Issuer string

	// Audience is written to "aud" when the caller does not supply one and,
	// when set, at least one entry is required on decode.
	Audience []string

	// DefaultClaims are merged under the caller's claims on encode.
	DefaultClaims Claims

	// DefaultTTL applies when Encode is called with ttl 0 and no exp claim.
	DefaultTTL time.Duration

	// Leeway allows small clock skew when validating exp/nbf/iat.
	Leeway time.Duration

	// Clock is the time source. Defaults to the real clock.
	Clock clockwork.Clock
}

// Codec signs and verifies tokens against named keysets.
type Codec struct {
	opts    Options
	keysets map[string]*KeySet
}

// NewCodec returns a codec serving the given keysets.
func NewCodec(opts Options, keysets ...*KeySet) (*Codec, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}

	c := &Codec{opts: opts, keysets: make(map[string]*KeySet, len(keysets))}
	for _, ks := range keysets {
		if _, dup := c.keysets[ks.Name()]; dup {
			return nil, fmt.Errorf("jwtx: duplicate keyset %q", ks.Name())
		}
		c.keysets[ks.Name()] = ks
	}
	return c, nil
}

// KeySet returns the named keyset.
func (c *Codec) KeySet(name string) (*KeySet, error) {
	ks, ok := c.keysets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyset, name)
	}
	return ks, nil
}

// JWKS returns the public keys of the named keyset.
func (c *Codec) JWKS(name string) (JWKS, error) {
	ks, err := c.KeySet(name)
	if err != nil {
		return JWKS{}, err
	}
	return ks.JWKS(), nil
}

// Encode signs claims with the keyset's signing key.
//
// Caller claims override DefaultClaims. "iat" defaults to now and "exp" to
// iat+ttl (DefaultTTL when ttl is 0). Passing both an "exp" claim and a
// non-zero ttl is rejected with ErrAmbiguousExpiry.
func (c *Codec) Encode(claims Claims, keyset string, ttl time.Duration) (string, error) {
	ks, err := c.KeySet(keyset)
	if err != nil {
		return "", err
	}
	key, err := ks.Signer()
	if err != nil {
		return "", err
	}

	if _, hasExp := claims["exp"]; hasExp && ttl != 0 {
		return "", ErrAmbiguousExpiry
	}

	out := make(Claims, len(c.opts.DefaultClaims)+len(claims)+5)
	maps.Copy(out, c.opts.DefaultClaims)
	maps.Copy(out, claims)

	if _, ok := out["iss"]; !ok && c.opts.Issuer != "" {
		out["iss"] = c.opts.Issuer
	}
	if _, ok := out["aud"]; !ok && len(c.opts.Audience) > 0 {
		out["aud"] = c.opts.Audience
	}

	iat := c.opts.Clock.Now()
	if v, ok := out["iat"]; ok {
		if iat, err = numericTime(v); err != nil {
			return "", err
		}
	}
	out["iat"] = iat.Unix()

	if v, ok := out["exp"]; ok {
		exp, err := numericTime(v)
		if err != nil {
			return "", err
		}
		out["exp"] = exp.Unix()
	} else {
		if ttl == 0 {
			ttl = c.opts.DefaultTTL
		}
		out["exp"] = iat.Add(ttl).Unix()
	}

	if v, ok := out["nbf"]; ok {
		nbf, err := numericTime(v)
		if err != nil {
			return "", err
		}
		out["nbf"] = nbf.Unix()
	}
	if _, ok := out["jti"]; !ok {
		out["jti"] = NewJTI()
	}

	t := jwt.NewWithClaims(key.method, jwt.MapClaims(out))
	t.Header["kid"] = key.Kid
	return t.SignedString(key.sign)
}

// Decode verifies the signature against the keyset and validates the time
// claims, issuer and audience. Claims are only returned after the signature
// has been verified. Every failure wraps exactly one of the package's
// decode sentinels.
func (c *Codec) Decode(token, keyset string) (Claims, error) {
	ks, err := c.KeySet(keyset)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithTimeFunc(c.opts.Clock.Now),
		jwt.WithLeeway(c.opts.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)

	parsed, err := parser.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := ks.Get(kid)
		if err != nil {
			return nil, err
		}
		// Never let the token pick the algorithm.
		if t.Method.Alg() != key.Alg {
			return nil, fmt.Errorf("%w: token %s, key %s", ErrAlgMismatch, t.Method.Alg(), key.Alg)
		}
		return key.verify, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidClaim
	}
	claims := Claims(mc)

	if err := claims.ValidateIssuer(c.opts.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(c.opts.Audience); err != nil {
		return nil, err
	}
	return claims, nil
}

func classify(err error) error {
	var sentinel error
	switch {
	case errors.Is(err, ErrUnknownKID):
		sentinel = ErrUnknownKID
	case errors.Is(err, ErrAlgMismatch):
		sentinel = ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenMalformed):
		sentinel = ErrMalformed
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Header named an algorithm the library does not know.
		sentinel = ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		sentinel = ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenExpired):
		sentinel = ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		sentinel = ErrNotYetValid
	default:
		sentinel = ErrInvalidClaim
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
