package authn

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/authz"
	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/password"
	"github.com/aussiebroadwan/shield/internal/auth/session"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultSessionLifetime     = 2 * time.Hour
	DefaultRememberLength      = 30 * 24 * time.Hour
	DefaultUnusedTokenLifetime = 365 * 24 * time.Hour
	DefaultMagicLinkLifetime   = time.Hour
	DefaultCodeLifetime        = 15 * time.Minute
	DefaultJWTKeyset           = "default"
	DefaultTOTPIssuer          = "Shield"

	// Aliases registered by NewManager.
	SessionAlias = "session"
	TokensAlias  = "tokens"
	HMACAlias    = "hmac"
	JWTAlias     = "jwt"
)

// Config holds the authentication knobs. Zero values take the defaults.
type Config struct {
	DefaultAuthenticator string

	// RequireActivation blocks inactive users from logging in and starts the
	// email activation action on registration.
	RequireActivation bool

	SessionLifetime time.Duration
	// RememberLength is the lifetime of a remember-me token. Zero disables
	// remember-me.
	RememberLength time.Duration
	// UnusedTokenLifetime expires access tokens not used for this long.
	UnusedTokenLifetime time.Duration
	MagicLinkLifetime   time.Duration
	CodeLifetime        time.Duration

	// MagicLinkURL is the verify endpoint; the token is appended as ?token=.
	MagicLinkURL string

	JWTKeyset string

	// SecondFactor names the action (email_2fa or totp) required after a
	// password login. Empty disables 2FA.
	SecondFactor domain.IdentityType
	TOTPIssuer   string

	RecordLogins     bool
	RecordActiveDate bool
}

func (c Config) withDefaults() Config {
	if c.DefaultAuthenticator == "" {
		c.DefaultAuthenticator = SessionAlias
	}
	if c.SessionLifetime <= 0 {
		c.SessionLifetime = DefaultSessionLifetime
	}
	if c.UnusedTokenLifetime <= 0 {
		c.UnusedTokenLifetime = DefaultUnusedTokenLifetime
	}
	if c.MagicLinkLifetime <= 0 {
		c.MagicLinkLifetime = DefaultMagicLinkLifetime
	}
	if c.CodeLifetime <= 0 {
		c.CodeLifetime = DefaultCodeLifetime
	}
	if c.JWTKeyset == "" {
		c.JWTKeyset = DefaultJWTKeyset
	}
	if c.TOTPIssuer == "" {
		c.TOTPIssuer = DefaultTOTPIssuer
	}
	return c
}

// Deps are the collaborators shared by every request.
type Deps struct {
	Store      store.Store
	Sessions   session.Store
	Passwords  *password.Engine
	Codec      *jwtx.Codec
	Sealer     *cryptox.Sealer
	Mailer     Mailer
	Authorizer *authz.Authorizer
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

func (d *Deps) validate() error {
	switch {
	case d.Store == nil:
		return fmt.Errorf("%w: store is required", ErrConfiguration)
	case d.Sessions == nil:
		return fmt.Errorf("%w: session store is required", ErrConfiguration)
	case d.Passwords == nil:
		return fmt.Errorf("%w: password engine is required", ErrConfiguration)
	case d.Authorizer == nil:
		return fmt.Errorf("%w: authorizer is required", ErrConfiguration)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Mailer == nil {
		d.Mailer = &LogMailer{Logger: d.Logger}
	}
	return nil
}
