package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/session"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/idx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// SessionAuthenticator logs users in with an identifier and password and
// keeps them logged in with a server-side session. It is request scoped.
type SessionAuthenticator struct {
	m   *Manager
	req RequestInfo

	user   *domain.User
	record *session.Record
	loaded bool

	rememberCookie string
}

var (
	_ Authenticator     = (*SessionAuthenticator)(nil)
	_ SessionCarrier    = (*SessionAuthenticator)(nil)
	_ RememberMeCapable = (*SessionAuthenticator)(nil)
	_ ActionCapable     = (*SessionAuthenticator)(nil)
)

func newSessionAuthenticator(m *Manager, req RequestInfo) Authenticator {
	return &SessionAuthenticator{m: m, req: req}
}

// Check verifies an identifier and password without logging in.
func (a *SessionAuthenticator) Check(ctx context.Context, creds Credentials) (Result, error) {
	passwords := a.m.deps.Passwords

	// 1. Extract credentials
	identifier := creds.identifier()
	if identifier == "" || creds.Password == "" {
		return Failure(InvalidCredentials, nil), nil
	}

	// 2. Find the user. Unknown users burn a hash so timing matches.
	user, err := a.m.users.Find(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		passwords.DummyVerify(creds.Password)
		return Failure(UnknownUser, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("find user: %w", err)
	}

	// 3. Find the password identity
	ident, err := a.m.deps.Store.Identities().GetByType(ctx, user.ID, domain.EmailPassword)
	if errors.Is(err, store.ErrNotFound) {
		passwords.DummyVerify(creds.Password)
		return Failure(InvalidCredentials, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get password identity: %w", err)
	}

	// 4. Verify the secret
	if !a.m.identities.VerifySecret(domain.EmailPassword, creds.Password, ident.Secret2) {
		return Failure(InvalidCredentials, nil), nil
	}

	// 5. Gate on account state
	if res, ok := gate(&user); !ok {
		return res, nil
	}

	// 6. Upgrade the hash when parameters changed
	if passwords.NeedsRehash(ident.Secret2) {
		a.rehash(ctx, ident, creds.Password)
	}

	return Success(&user, nil), nil
}

func (a *SessionAuthenticator) rehash(ctx context.Context, ident domain.Identity, pw string) {
	log := slogx.FromContext(ctx)
	hash, err := a.m.deps.Passwords.Hash(pw)
	if err != nil {
		log.Warn("password rehash failed", "user_id", ident.UserID, "error", err)
		return
	}
	if err := a.m.deps.Store.Identities().UpdateSecret2(ctx, ident.ID, hash); err != nil {
		log.Warn("password rehash failed", "user_id", ident.UserID, "error", err)
	}
}

// Attempt checks credentials and logs the user in. With a second factor
// configured, the session stays pending and the result is ActionPending.
func (a *SessionAuthenticator) Attempt(ctx context.Context, creds Credentials) (Result, error) {
	res, err := a.Check(ctx, creds)
	if err != nil {
		return Result{}, err
	}

	userID := ""
	if res.User() != nil {
		userID = res.User().ID
	}
	a.m.recordLogin(ctx, a.req, string(domain.EmailPassword), creds.identifier(), userID, res.OK())
	if !res.OK() {
		return res, nil
	}

	user := res.User()
	if action := a.m.cfg.SecondFactor; action != "" {
		return a.startAction(ctx, user, action, creds.Remember)
	}

	if err := a.Login(ctx, user); err != nil {
		return Result{}, err
	}
	if creds.Remember {
		if err := a.remember(ctx, user); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

// Login starts a fresh session for user, discarding any session the request
// carried.
func (a *SessionAuthenticator) Login(ctx context.Context, user *domain.User) error {
	if err := a.newSession(ctx, user, "", false); err != nil {
		return err
	}
	a.user = user
	a.m.touchActive(ctx, user)
	return nil
}

func (a *SessionAuthenticator) LoginByID(ctx context.Context, id string) error {
	user, err := a.m.users.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("login by id: %w", err)
	}
	return a.Login(ctx, &user)
}

func (a *SessionAuthenticator) newSession(ctx context.Context, user *domain.User, pending domain.IdentityType, remember bool) error {
	sessions := a.m.deps.Sessions
	if old := a.currentSessionID(); old != "" {
		if err := sessions.Delete(ctx, old); err != nil {
			return fmt.Errorf("drop old session: %w", err)
		}
	}

	now := a.m.deps.Clock.Now()
	rec := session.Record{
		ID:        session.NewID(),
		UserID:    user.ID,
		Pending:   string(pending),
		Remember:  remember,
		IP:        a.req.IP,
		UserAgent: a.req.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(a.m.cfg.SessionLifetime),
	}
	if err := sessions.Save(ctx, rec); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	a.record = &rec
	a.loaded = true
	return nil
}

func (a *SessionAuthenticator) currentSessionID() string {
	if a.loaded {
		if a.record == nil {
			return ""
		}
		return a.record.ID
	}
	return a.req.SessionID
}

// SessionID is the id to hand back to the client, empty when logged out.
func (a *SessionAuthenticator) SessionID() string {
	if a.record == nil {
		return ""
	}
	return a.record.ID
}

// loadSession resolves the request's session cookie once.
func (a *SessionAuthenticator) loadSession(ctx context.Context) *session.Record {
	if a.loaded {
		return a.record
	}
	a.loaded = true
	if a.req.SessionID == "" {
		return nil
	}
	rec, err := a.m.deps.Sessions.Get(ctx, a.req.SessionID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			slogx.FromContext(ctx).Warn("session lookup failed", "error", err)
		}
		return nil
	}
	a.record = &rec
	return a.record
}

// LoggedIn resolves the session cookie, then the remember-me cookie.
func (a *SessionAuthenticator) LoggedIn(ctx context.Context) bool {
	if a.user != nil {
		return true
	}

	if rec := a.loadSession(ctx); rec != nil && rec.Pending == "" {
		user, err := a.m.users.Get(ctx, rec.UserID)
		if err == nil {
			if _, ok := gate(&user); ok {
				a.user = &user
				return true
			}
		}
		// A session whose user vanished or was blocked is dead.
		_ = a.m.deps.Sessions.Delete(ctx, rec.ID)
		a.record = nil
	}

	return a.loginFromRemember(ctx)
}

func (a *SessionAuthenticator) User() *domain.User { return a.user }

// Logout ends the session and revokes the remember-me token on the request.
func (a *SessionAuthenticator) Logout(ctx context.Context) error {
	if id := a.currentSessionID(); id != "" {
		if err := a.m.deps.Sessions.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	if selector, _, ok := splitRemember(a.req.RememberToken); ok {
		if err := a.m.deps.Store.RememberTokens().DeleteBySelector(ctx, selector); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete remember token: %w", err)
		}
	}
	a.user, a.record, a.loaded = nil, nil, true
	a.rememberCookie = ""
	return nil
}

// remember issues a selector:validator token. Only the validator's
// fingerprint is stored.
func (a *SessionAuthenticator) remember(ctx context.Context, user *domain.User) error {
	if a.m.cfg.RememberLength <= 0 {
		return nil
	}
	selector, err := cryptox.GenerateHexToken(cryptox.TokenSize128)
	if err != nil {
		return err
	}
	validator, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	now := a.m.deps.Clock.Now()
	tok := domain.RememberToken{
		ID:              idx.New().String(),
		Selector:        selector,
		HashedValidator: cryptox.FingerprintToken(validator),
		UserID:          user.ID,
		Expires:         now.Add(a.m.cfg.RememberLength),
		CreatedAt:       now,
	}
	if err := a.m.deps.Store.RememberTokens().Create(ctx, tok); err != nil {
		return fmt.Errorf("create remember token: %w", err)
	}
	a.rememberCookie = selector + ":" + validator
	return nil
}

func (a *SessionAuthenticator) RememberCookie() string { return a.rememberCookie }

// Forget revokes every remember-me token of the logged in user.
func (a *SessionAuthenticator) Forget(ctx context.Context) error {
	if a.user == nil {
		return nil
	}
	a.rememberCookie = ""
	return a.m.deps.Store.RememberTokens().DeleteForUser(ctx, a.user.ID)
}

func splitRemember(cookie string) (selector, validator string, ok bool) {
	selector, validator, ok = strings.Cut(cookie, ":")
	if !ok || selector == "" || validator == "" {
		return "", "", false
	}
	return selector, validator, true
}

// loginFromRemember logs in from a remember-me cookie and rotates the token.
func (a *SessionAuthenticator) loginFromRemember(ctx context.Context) bool {
	selector, validator, ok := splitRemember(a.req.RememberToken)
	if !ok {
		return false
	}
	log := slogx.FromContext(ctx)
	tokens := a.m.deps.Store.RememberTokens()

	tok, err := tokens.GetBySelector(ctx, selector)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("remember token lookup failed", "error", err)
		}
		return false
	}
	if !a.m.deps.Clock.Now().Before(tok.Expires) || !cryptox.EqualFingerprint(validator, tok.HashedValidator) {
		_ = tokens.DeleteBySelector(ctx, selector)
		return false
	}

	user, err := a.m.users.Get(ctx, tok.UserID)
	if err != nil {
		return false
	}
	if _, ok := gate(&user); !ok {
		return false
	}

	// Rotate: the old token is single use.
	if err := tokens.DeleteBySelector(ctx, selector); err != nil {
		log.Warn("remember token rotation failed", "error", err)
		return false
	}
	if err := a.Login(ctx, &user); err != nil {
		log.Warn("remember login failed", "error", err)
		return false
	}
	if err := a.remember(ctx, &user); err != nil {
		log.Warn("remember token rotation failed", "error", err)
	}
	return true
}

// PendingAction returns the action the request's session waits on.
func (a *SessionAuthenticator) PendingAction(ctx context.Context) domain.IdentityType {
	rec := a.loadSession(ctx)
	if rec == nil {
		return ""
	}
	return domain.IdentityType(rec.Pending)
}

// StartAction opens a pending session for user and starts the action.
func (a *SessionAuthenticator) StartAction(ctx context.Context, user *domain.User, action domain.IdentityType) (Result, error) {
	return a.startAction(ctx, user, action, false)
}

// startAction is StartAction for a password login; remember is carried on
// the pending session and honoured by VerifyAction.
func (a *SessionAuthenticator) startAction(ctx context.Context, user *domain.User, action domain.IdentityType, remember bool) (Result, error) {
	act, err := a.m.Action(action)
	if err != nil {
		return Result{}, err
	}
	if err := a.newSession(ctx, user, action, remember); err != nil {
		return Result{}, err
	}
	a.user = nil

	res, err := act.Start(ctx, user)
	if err != nil {
		return Result{}, err
	}
	if !res.OK() {
		return res, nil
	}
	return Pending(user, action), nil
}

// VerifyAction checks code against the pending action. Success clears the
// pending flag and logs the user in on the same session.
func (a *SessionAuthenticator) VerifyAction(ctx context.Context, code string) (Result, error) {
	rec := a.loadSession(ctx)
	if rec == nil || rec.Pending == "" {
		return Result{}, ErrNoPendingAction
	}
	act, err := a.m.Action(domain.IdentityType(rec.Pending))
	if err != nil {
		return Result{}, err
	}

	user, err := a.m.users.Get(ctx, rec.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("load pending user: %w", err)
	}

	res, err := act.Verify(ctx, &user, code)
	if err != nil || !res.OK() {
		return res, err
	}
	user = *res.User()

	if r, ok := gate(&user); !ok {
		return r, nil
	}

	remember := rec.Remember
	rec.Pending, rec.Remember = "", false
	if err := a.m.deps.Sessions.Save(ctx, *rec); err != nil {
		return Result{}, fmt.Errorf("save session: %w", err)
	}
	a.user = &user
	a.m.touchActive(ctx, &user)
	if remember {
		if err := a.remember(ctx, &user); err != nil {
			return Result{}, err
		}
	}
	return Success(&user, nil), nil
}
