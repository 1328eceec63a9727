package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// AccessTokens issues and revokes personal access tokens. Only the token's
// fingerprint is stored; the raw value is returned once on creation.
type AccessTokens struct {
	Identities *Identities
}

// Generate creates a token for user. No scopes means all scopes.
func (s *AccessTokens) Generate(ctx context.Context, user *domain.User, name string, scopes []string, opts ...IdentityOption) (string, domain.Identity, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.Identity{}, err
	}
	if len(scopes) == 0 {
		scopes = []string{"*"}
	}
	opts = append([]IdentityOption{WithName(name), WithScopes(scopes...)}, opts...)
	id, err := s.Identities.CreateIdentity(ctx, user, domain.AccessToken, cryptox.FingerprintToken(raw), opts...)
	if err != nil {
		return "", domain.Identity{}, err
	}
	return raw, id, nil
}

func (s *AccessTokens) List(ctx context.Context, user *domain.User) ([]domain.Identity, error) {
	return s.Identities.GetAllByType(ctx, user, domain.AccessToken)
}

// Revoke deletes one of user's tokens by identity id.
func (s *AccessTokens) Revoke(ctx context.Context, user *domain.User, id string) error {
	return s.Identities.Store.Identities().DeleteByID(ctx, user.ID, id)
}

// RevokeByToken deletes one of user's tokens by its raw value.
func (s *AccessTokens) RevokeByToken(ctx context.Context, user *domain.User, raw string) error {
	id, err := s.Identities.Store.Identities().GetBySecret(ctx, domain.AccessToken, cryptox.FingerprintToken(raw))
	if err != nil {
		return err
	}
	return s.Revoke(ctx, user, id.ID)
}

func (s *AccessTokens) RevokeAll(ctx context.Context, user *domain.User) error {
	return s.Identities.DeleteIdentitiesByType(ctx, user, domain.AccessToken)
}

// tokenAuth is the stateless part shared by bearer-style strategies: the
// credential is presented on every request and nothing is persisted on login.
type tokenAuth struct {
	m      *Manager
	req    RequestInfo
	idType domain.IdentityType

	check       func(ctx context.Context, creds Credentials) (Result, error)
	fromRequest func(req RequestInfo) (Credentials, bool)

	user  *domain.User
	token *domain.Identity
}

func (a *tokenAuth) Check(ctx context.Context, creds Credentials) (Result, error) {
	return a.check(ctx, creds)
}

// Attempt checks the token and binds the user and token to the request.
func (a *tokenAuth) Attempt(ctx context.Context, creds Credentials) (Result, error) {
	res, err := a.check(ctx, creds)
	if err != nil {
		return Result{}, err
	}

	ident, _ := res.Extra().(*domain.Identity)
	identifier, userID := "", ""
	if ident != nil {
		identifier, userID = ident.Name, ident.UserID
	}
	a.m.recordLogin(ctx, a.req, string(a.idType), identifier, userID, res.OK())
	if !res.OK() {
		return res, nil
	}

	a.user, a.token = res.User(), ident
	a.touch(ctx)
	a.m.touchActive(ctx, a.user)
	return res, nil
}

// touch records last use of the token. It never fails the request.
func (a *tokenAuth) touch(ctx context.Context) {
	now := a.m.deps.Clock.Now()
	if err := a.m.deps.Store.Identities().Touch(ctx, a.token.ID, now, a.req.IP); err != nil {
		slogx.FromContext(ctx).Warn("failed to touch token", "identity_id", a.token.ID, "error", err)
		return
	}
	a.token.LastUsedAt = &now
	a.token.LastUsedIP = a.req.IP
}

// LoggedIn authenticates the credential carried by the request.
func (a *tokenAuth) LoggedIn(ctx context.Context) bool {
	if a.user != nil {
		return true
	}
	creds, ok := a.fromRequest(a.req)
	if !ok {
		return false
	}
	res, err := a.Attempt(ctx, creds)
	if err != nil {
		slogx.FromContext(ctx).Warn("token authentication failed", "type", a.idType, "error", err)
		return false
	}
	return res.OK()
}

// Login binds user to the request without a token.
func (a *tokenAuth) Login(_ context.Context, user *domain.User) error {
	a.user, a.token = user, nil
	return nil
}

func (a *tokenAuth) LoginByID(ctx context.Context, id string) error {
	user, err := a.m.users.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("login by id: %w", err)
	}
	return a.Login(ctx, &user)
}

func (a *tokenAuth) Logout(context.Context) error {
	a.user, a.token = nil, nil
	return nil
}

func (a *tokenAuth) User() *domain.User { return a.user }

func (a *tokenAuth) CurrentToken() *domain.Identity { return a.token }

// TokenCan reports whether the current token grants scope.
func (a *tokenAuth) TokenCan(scope string) bool {
	return a.token != nil && a.token.Can(scope)
}

// findToken looks a stored token up by secret and checks its expiry.
func (a *tokenAuth) findToken(ctx context.Context, secret string) (*domain.Identity, Result, error) {
	ident, err := a.m.deps.Store.Identities().GetBySecret(ctx, a.idType, secret)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Failure(TokenNotFound, nil), nil
	}
	if err != nil {
		return nil, Result{}, fmt.Errorf("get %s identity: %w", a.idType, err)
	}

	now := a.m.deps.Clock.Now()
	if ident.IsExpired(now) {
		return nil, Failure(TokenExpired, nil), nil
	}
	lastUsed := ident.CreatedAt
	if ident.LastUsedAt != nil {
		lastUsed = *ident.LastUsedAt
	}
	if now.Sub(lastUsed) > a.m.cfg.UnusedTokenLifetime {
		return nil, Failure(TokenExpired, nil), nil
	}
	return &ident, Result{}, nil
}

// tokenUser loads the token's owner and applies the user gate.
func (a *tokenAuth) tokenUser(ctx context.Context, ident *domain.Identity) (Result, error) {
	user, err := a.m.users.Get(ctx, ident.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Failure(UnknownUser, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get token user: %w", err)
	}
	if res, ok := gate(&user); !ok {
		return res, nil
	}
	return Success(&user, ident), nil
}

// AccessTokenAuthenticator authenticates "Authorization: Bearer" tokens.
type AccessTokenAuthenticator struct {
	tokenAuth
}

var (
	_ Authenticator = (*AccessTokenAuthenticator)(nil)
	_ TokenScoped   = (*AccessTokenAuthenticator)(nil)
)

func newAccessTokenAuthenticator(m *Manager, req RequestInfo) Authenticator {
	a := &AccessTokenAuthenticator{tokenAuth{m: m, req: req, idType: domain.AccessToken}}
	a.check = a.checkToken
	a.fromRequest = func(req RequestInfo) (Credentials, bool) {
		tok, ok := schemeValue(req.Authorization, "Bearer")
		return Credentials{Token: tok}, ok
	}
	return a
}

func (a *AccessTokenAuthenticator) checkToken(ctx context.Context, creds Credentials) (Result, error) {
	if creds.Token == "" {
		return Failure(TokenMissing, nil), nil
	}
	ident, res, err := a.findToken(ctx, cryptox.FingerprintToken(creds.Token))
	if err != nil || ident == nil {
		return res, err
	}
	return a.tokenUser(ctx, ident)
}

// schemeValue extracts the credentials of an Authorization header with the
// given scheme, case-insensitively.
func schemeValue(header, scheme string) (string, bool) {
	prefix, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(prefix, scheme) {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
