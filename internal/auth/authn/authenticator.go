package authn

import (
	"context"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
)

// Authenticator is the capability set every strategy implements. Expected
// failures come back as a Result; errors are reserved for storage and
// configuration problems.
type Authenticator interface {
	// Attempt verifies creds and, on success, logs the user in.
	Attempt(ctx context.Context, creds Credentials) (Result, error)
	// Check verifies creds without logging in.
	Check(ctx context.Context, creds Credentials) (Result, error)
	// LoggedIn reports whether the request carries a valid login.
	LoggedIn(ctx context.Context) bool
	Login(ctx context.Context, user *domain.User) error
	LoginByID(ctx context.Context, id string) error
	Logout(ctx context.Context) error
	User() *domain.User
}

// SessionCarrier is implemented by strategies that keep a server-side session.
type SessionCarrier interface {
	SessionID() string
}

// RememberMeCapable is implemented by strategies that issue remember-me cookies.
type RememberMeCapable interface {
	// RememberCookie is the selector:validator value to set on the client,
	// empty when none was issued during this request.
	RememberCookie() string
	// Forget revokes every remember-me token of the current user.
	Forget(ctx context.Context) error
}

// ActionCapable is implemented by strategies that can hold a login pending
// a second factor or activation.
type ActionCapable interface {
	// PendingAction is the action the current session waits on, empty if none.
	PendingAction(ctx context.Context) domain.IdentityType
	// StartAction opens a pending session for user and issues the action's
	// code. It replaces any session on the request.
	StartAction(ctx context.Context, user *domain.User, action domain.IdentityType) (Result, error)
	// VerifyAction completes the pending action and logs the user in.
	VerifyAction(ctx context.Context, code string) (Result, error)
}

// TokenScoped is implemented by token strategies.
type TokenScoped interface {
	CurrentToken() *domain.Identity
	TokenCan(scope string) bool
}

// TokenIssuer is implemented by strategies that mint tokens.
type TokenIssuer interface {
	IssueToken(ctx context.Context, user *domain.User, claims jwtx.Claims, ttl time.Duration) (string, error)
}

// Action is a second step verified by a short code: an emailed 2FA code,
// an activation code, or a TOTP.
type Action interface {
	Type() domain.IdentityType
	// Start issues a fresh code to the user. MailDeliveryFailed is reported
	// as a Result, not an error.
	Start(ctx context.Context, user *domain.User) (Result, error)
	Verify(ctx context.Context, user *domain.User, code string) (Result, error)
}
