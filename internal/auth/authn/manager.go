package authn

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/shield/internal/auth/authz"
	"github.com/aussiebroadwan/shield/internal/auth/domain"
)

// Factory builds a request-scoped authenticator.
type Factory func(m *Manager, req RequestInfo) Authenticator

// Manager is the process-wide entry point. It owns the shared services and
// the registry of authenticator factories; Begin hands out request-scoped
// Auth values.
type Manager struct {
	cfg  Config
	deps Deps

	factories map[string]Factory
	actions   map[domain.IdentityType]Action

	users      *Users
	identities *Identities
	tokens     *AccessTokens
	hmacTokens *HMACTokens
	magicLinks *MagicLinks
	totp       *TOTP
}

// NewManager wires the services and registers the built-in authenticators
// under SessionAlias, TokensAlias, HMACAlias and JWTAlias.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := deps.validate(); err != nil {
		return nil, err
	}
	switch cfg.SecondFactor {
	case "", domain.Email2FA, domain.TOTP:
	default:
		return nil, fmt.Errorf("%w: unsupported second factor %q", ErrConfiguration, cfg.SecondFactor)
	}

	m := &Manager{
		cfg:       cfg,
		deps:      deps,
		factories: make(map[string]Factory),
		actions:   make(map[domain.IdentityType]Action),
	}
	m.identities = &Identities{Store: deps.Store, Passwords: deps.Passwords, Clock: deps.Clock}
	m.users = &Users{
		Store:             deps.Store,
		Passwords:         deps.Passwords,
		Sessions:          deps.Sessions,
		Authorizer:        deps.Authorizer,
		Clock:             deps.Clock,
		RequireActivation: cfg.RequireActivation,
	}
	m.tokens = &AccessTokens{Identities: m.identities}
	m.hmacTokens = &HMACTokens{Identities: m.identities, Sealer: deps.Sealer}
	m.magicLinks = &MagicLinks{
		Identities: m.identities,
		Users:      m.users,
		Mailer:     deps.Mailer,
		Lifetime:   cfg.MagicLinkLifetime,
		URL:        cfg.MagicLinkURL,
	}
	m.totp = &TOTP{Identities: m.identities, Issuer: cfg.TOTPIssuer}

	m.RegisterAction(&Email2FA{Identities: m.identities, Mailer: deps.Mailer, Lifetime: cfg.CodeLifetime})
	m.RegisterAction(&EmailActivator{Identities: m.identities, Users: m.users, Mailer: deps.Mailer, Lifetime: cfg.CodeLifetime})
	m.RegisterAction(m.totp)

	m.Register(SessionAlias, newSessionAuthenticator)
	m.Register(TokensAlias, newAccessTokenAuthenticator)
	m.Register(HMACAlias, newHMACAuthenticator)
	m.Register(JWTAlias, newJWTAuthenticator)

	if _, ok := m.factories[cfg.DefaultAuthenticator]; !ok {
		return nil, fmt.Errorf("%w: default authenticator %q", ErrUnknownAuthenticator, cfg.DefaultAuthenticator)
	}
	return m, nil
}

// Register adds or replaces an authenticator. Call it during setup only.
func (m *Manager) Register(alias string, f Factory) { m.factories[alias] = f }

// RegisterAction adds or replaces an action. Call it during setup only.
func (m *Manager) RegisterAction(a Action) { m.actions[a.Type()] = a }

// Action returns the registered action of typ.
func (m *Manager) Action(typ domain.IdentityType) (Action, error) {
	a, ok := m.actions[typ]
	if !ok {
		return nil, fmt.Errorf("%w: no action %q", ErrConfiguration, typ)
	}
	return a, nil
}

func (m *Manager) Config() Config { return m.cfg }
func (m *Manager) Users() *Users { return m.users }
func (m *Manager) Identities() *Identities { return m.identities }
func (m *Manager) AccessTokens() *AccessTokens { return m.tokens }
func (m *Manager) HMACTokens() *HMACTokens { return m.hmacTokens }
func (m *Manager) MagicLinks() *MagicLinks { return m.magicLinks }
func (m *Manager) TOTP() *TOTP { return m.totp }
func (m *Manager) Authorizer() *authz.Authorizer { return m.deps.Authorizer }

// Begin returns the facade for one request.
func (m *Manager) Begin(req RequestInfo) *Auth {
	return &Auth{
		m:         m,
		req:       req,
		alias:     m.cfg.DefaultAuthenticator,
		instances: make(map[string]Authenticator),
	}
}

// Auth is the request-scoped facade over the registered authenticators. It
// is not safe for concurrent use.
type Auth struct {
	m     *Manager
	req   RequestInfo
	alias string

	instances map[string]Authenticator
	user      *domain.User
	subject   *authz.Subject
}

// Use switches the active authenticator for the rest of the request.
func (a *Auth) Use(alias string) (*Auth, error) {
	if _, ok := a.m.factories[alias]; !ok {
		return a, fmt.Errorf("%w: %q", ErrUnknownAuthenticator, alias)
	}
	if alias != a.alias {
		a.alias = alias
		a.user, a.subject = nil, nil
	}
	return a, nil
}

// Alias is the name of the active authenticator.
func (a *Auth) Alias() string { return a.alias }

func (a *Auth) Request() RequestInfo { return a.req }

func (a *Auth) instance(alias string) Authenticator {
	if inst, ok := a.instances[alias]; ok {
		return inst
	}
	inst := a.m.factories[alias](a.m, a.req)
	a.instances[alias] = inst
	return inst
}

// Authenticator returns the active authenticator instance.
func (a *Auth) Authenticator() Authenticator { return a.instance(a.alias) }

// Authenticate runs Attempt on the active authenticator and remembers the
// user on success.
func (a *Auth) Authenticate(ctx context.Context, creds Credentials) (Result, error) {
	res, err := a.Authenticator().Attempt(ctx, creds)
	if err != nil {
		return Result{}, err
	}
	if res.OK() {
		a.setUser(res.User())
	}
	return res, nil
}

func (a *Auth) setUser(u *domain.User) {
	if a.user == nil || u == nil || a.user.ID != u.ID {
		a.subject = nil
	}
	a.user = u
}

// LoggedIn reports whether the active authenticator recognises the request.
func (a *Auth) LoggedIn(ctx context.Context) bool {
	if a.user != nil {
		return true
	}
	inst := a.Authenticator()
	if !inst.LoggedIn(ctx) {
		return false
	}
	a.setUser(inst.User())
	return true
}

// User is the authenticated user, nil when logged out.
func (a *Auth) User() *domain.User {
	if a.user != nil {
		return a.user
	}
	return a.Authenticator().User()
}

// ID is the authenticated user's id, empty when logged out.
func (a *Auth) ID() string {
	if u := a.User(); u != nil {
		return u.ID
	}
	return ""
}

func (a *Auth) Logout(ctx context.Context) error {
	if err := a.Authenticator().Logout(ctx); err != nil {
		return err
	}
	a.user, a.subject = nil, nil
	return nil
}

// Access returns the authorization subject of the current user, nil when
// logged out. It is memoized for the request.
func (a *Auth) Access() *authz.Subject {
	u := a.User()
	if u == nil {
		return nil
	}
	if a.subject == nil || a.subject.UserID() != u.ID {
		a.subject = a.m.deps.Authorizer.For(u.ID)
	}
	return a.subject
}

// VerifyMagicLink consumes a magic link token and logs the user in with the
// session authenticator.
func (a *Auth) VerifyMagicLink(ctx context.Context, token string) (Result, error) {
	res, err := a.m.magicLinks.Verify(ctx, token)
	if err != nil {
		return Result{}, err
	}

	userID := ""
	if ident, ok := res.Extra().(*domain.Identity); ok {
		userID = ident.UserID
	}
	a.m.recordLogin(ctx, a.req, string(domain.MagicLink), "", userID, res.OK())
	if !res.OK() {
		return res, nil
	}

	if _, err := a.Use(SessionAlias); err != nil {
		return Result{}, err
	}
	if err := a.Authenticator().Login(ctx, res.User()); err != nil {
		return Result{}, err
	}
	a.setUser(res.User())
	return res, nil
}

// As returns the active authenticator as T when it implements it.
func As[T any](a *Auth) (T, bool) {
	v, ok := a.Authenticator().(T)
	return v, ok
}
