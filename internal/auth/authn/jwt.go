package authn

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// JWTAuthenticator authenticates bearer JWTs signed by one of the codec's
// keysets. The "sub" claim is the user id.
type JWTAuthenticator struct {
	m   *Manager
	req RequestInfo

	user   *domain.User
	claims jwtx.Claims
}

var (
	_ Authenticator = (*JWTAuthenticator)(nil)
	_ TokenIssuer   = (*JWTAuthenticator)(nil)
)

func newJWTAuthenticator(m *Manager, req RequestInfo) Authenticator {
	return &JWTAuthenticator{m: m, req: req}
}

// jwtReason translates codec failures. Unrecognised errors are not token
// problems and are returned as errors.
func jwtReason(err error) (Reason, bool) {
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return TokenExpired, true
	case errors.Is(err, jwtx.ErrNotYetValid):
		return TokenNotYetValid, true
	case errors.Is(err, jwtx.ErrInvalidSig), errors.Is(err, jwtx.ErrUnknownKID):
		return TokenSignatureInvalid, true
	case errors.Is(err, jwtx.ErrUnknownKeyset):
		return UnknownKeyset, true
	case errors.Is(err, jwtx.ErrMalformed), errors.Is(err, jwtx.ErrAlgMismatch),
		errors.Is(err, jwtx.ErrInvalidClaim), errors.Is(err, jwtx.ErrIssuer),
		errors.Is(err, jwtx.ErrAudience):
		return TokenMalformed, true
	}
	return ReasonNone, false
}

func (a *JWTAuthenticator) Check(ctx context.Context, creds Credentials) (Result, error) {
	if creds.Token == "" {
		return Failure(TokenMissing, nil), nil
	}
	if a.m.deps.Codec == nil {
		return Result{}, fmt.Errorf("%w: jwt codec not configured", ErrConfiguration)
	}
	keyset := creds.Keyset
	if keyset == "" {
		keyset = a.m.cfg.JWTKeyset
	}

	claims, err := a.m.deps.Codec.Decode(creds.Token, keyset)
	if err != nil {
		if reason, ok := jwtReason(err); ok {
			return Failure(reason, nil), nil
		}
		return Result{}, fmt.Errorf("decode jwt: %w", err)
	}

	sub := claims.Subject()
	if sub == "" {
		return Failure(TokenMalformed, nil), nil
	}
	user, err := a.m.users.Get(ctx, sub)
	if errors.Is(err, store.ErrNotFound) {
		return Failure(UnknownUser, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get jwt user: %w", err)
	}
	if res, ok := gate(&user); !ok {
		return res, nil
	}
	return Success(&user, claims), nil
}

func (a *JWTAuthenticator) Attempt(ctx context.Context, creds Credentials) (Result, error) {
	res, err := a.Check(ctx, creds)
	if err != nil {
		return Result{}, err
	}

	userID := ""
	if res.User() != nil {
		userID = res.User().ID
	}
	a.m.recordLogin(ctx, a.req, "jwt", userID, userID, res.OK())
	if !res.OK() {
		return res, nil
	}

	a.user = res.User()
	a.claims, _ = res.Extra().(jwtx.Claims)
	a.m.touchActive(ctx, a.user)
	return res, nil
}

func (a *JWTAuthenticator) LoggedIn(ctx context.Context) bool {
	if a.user != nil {
		return true
	}
	tok, ok := schemeValue(a.req.Authorization, "Bearer")
	if !ok {
		return false
	}
	res, err := a.Attempt(ctx, Credentials{Token: tok})
	if err != nil {
		slogx.FromContext(ctx).Warn("jwt authentication failed", "error", err)
		return false
	}
	return res.OK()
}

func (a *JWTAuthenticator) Login(_ context.Context, user *domain.User) error {
	a.user, a.claims = user, nil
	return nil
}

func (a *JWTAuthenticator) LoginByID(ctx context.Context, id string) error {
	user, err := a.m.users.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("login by id: %w", err)
	}
	return a.Login(ctx, &user)
}

func (a *JWTAuthenticator) Logout(context.Context) error {
	a.user, a.claims = nil, nil
	return nil
}

func (a *JWTAuthenticator) User() *domain.User { return a.user }

// Claims are the decoded claims of the authenticated token.
func (a *JWTAuthenticator) Claims() jwtx.Claims { return a.claims }

// IssueToken signs a token for user with the configured keyset. claims may
// carry extra fields; "sub" is always the user id.
func (a *JWTAuthenticator) IssueToken(_ context.Context, user *domain.User, claims jwtx.Claims, ttl time.Duration) (string, error) {
	if a.m.deps.Codec == nil {
		return "", fmt.Errorf("%w: jwt codec not configured", ErrConfiguration)
	}
	out := make(jwtx.Claims, len(claims)+1)
	maps.Copy(out, claims)
	out["sub"] = user.ID

	tok, err := a.m.deps.Codec.Encode(out, a.m.cfg.JWTKeyset, ttl)
	if err != nil {
		return "", fmt.Errorf("issue jwt: %w", err)
	}
	return tok, nil
}
