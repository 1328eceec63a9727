package authn

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
)

// HMACScheme is the Authorization scheme for signed requests:
// "HMAC-SHA256 <key>:<hex signature of the body>".
const HMACScheme = "HMAC-SHA256"

// HMACKey is a newly created key pair. Secret is shown once.
type HMACKey struct {
	Key      string
	Secret   string
	Identity domain.Identity
}

// HMACTokens issues signing keys. The shared secret is sealed at rest and
// opened only to verify a signature.
type HMACTokens struct {
	Identities *Identities
	Sealer     *cryptox.Sealer
}

func (s *HMACTokens) Generate(ctx context.Context, user *domain.User, name string, scopes []string) (HMACKey, error) {
	if s.Sealer == nil {
		return HMACKey{}, fmt.Errorf("%w: hmac tokens need a master key", ErrConfiguration)
	}
	key, err := cryptox.GenerateHexToken(cryptox.TokenSize128)
	if err != nil {
		return HMACKey{}, err
	}
	secret, err := cryptox.GenerateHexToken(cryptox.TokenSize256)
	if err != nil {
		return HMACKey{}, err
	}
	sealed, err := s.Sealer.Seal([]byte(secret))
	if err != nil {
		return HMACKey{}, fmt.Errorf("seal hmac secret: %w", err)
	}
	if len(scopes) == 0 {
		scopes = []string{"*"}
	}

	id, err := s.Identities.CreateIdentity(ctx, user, domain.HMACToken, key,
		WithName(name), WithSecret2(sealed), WithScopes(scopes...))
	if err != nil {
		return HMACKey{}, err
	}
	return HMACKey{Key: key, Secret: secret, Identity: id}, nil
}

func (s *HMACTokens) List(ctx context.Context, user *domain.User) ([]domain.Identity, error) {
	return s.Identities.GetAllByType(ctx, user, domain.HMACToken)
}

func (s *HMACTokens) Revoke(ctx context.Context, user *domain.User, id string) error {
	return s.Identities.Store.Identities().DeleteByID(ctx, user.ID, id)
}

func (s *HMACTokens) RevokeAll(ctx context.Context, user *domain.User) error {
	return s.Identities.DeleteIdentitiesByType(ctx, user, domain.HMACToken)
}

// SignHMAC returns the hex HMAC-SHA256 of body under secret.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACAuthorization builds the Authorization header value for a request body.
func HMACAuthorization(key, secret string, body []byte) string {
	return HMACScheme + " " + key + ":" + SignHMAC(secret, body)
}

// HMACAuthenticator authenticates requests signed with an HMAC key.
type HMACAuthenticator struct {
	tokenAuth
}

var (
	_ Authenticator = (*HMACAuthenticator)(nil)
	_ TokenScoped   = (*HMACAuthenticator)(nil)
)

func newHMACAuthenticator(m *Manager, req RequestInfo) Authenticator {
	a := &HMACAuthenticator{tokenAuth{m: m, req: req, idType: domain.HMACToken}}
	a.check = a.checkSignature
	a.fromRequest = func(req RequestInfo) (Credentials, bool) {
		tok, ok := schemeValue(req.Authorization, HMACScheme)
		return Credentials{Token: tok, Body: req.Body}, ok
	}
	return a
}

func (a *HMACAuthenticator) checkSignature(ctx context.Context, creds Credentials) (Result, error) {
	if creds.Token == "" {
		return Failure(TokenMissing, nil), nil
	}
	key, sig, ok := strings.Cut(creds.Token, ":")
	if !ok || key == "" || sig == "" {
		return Failure(TokenMalformed, nil), nil
	}
	presented, err := hex.DecodeString(sig)
	if err != nil {
		return Failure(TokenMalformed, nil), nil
	}

	ident, res, err := a.findToken(ctx, key)
	if err != nil || ident == nil {
		return res, err
	}

	if a.m.deps.Sealer == nil {
		return Result{}, fmt.Errorf("%w: hmac tokens need a master key", ErrConfiguration)
	}
	secret, err := a.m.deps.Sealer.Open(ident.Secret2)
	if err != nil {
		return Result{}, fmt.Errorf("open hmac secret: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(creds.Body)
	if !hmac.Equal(mac.Sum(nil), presented) {
		return Failure(TokenSignatureInvalid, nil), nil
	}
	return a.tokenUser(ctx, ident)
}
