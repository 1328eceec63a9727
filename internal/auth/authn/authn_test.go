package authn

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/shield/internal/auth/authz"
	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/password"
	"github.com/aussiebroadwan/shield/internal/auth/session"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
)

const (
	alicePassword = "Tr0ub4dor-and-3"
	testAuthz     = `
default_group = "user"

[groups.admin]
title = "Admin"

[groups.user]
title = "User"

[permissions]
"users.create" = "Create users"
"billing.refund" = "Refund payments"

[matrix]
admin = ["users.*"]
`
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	m        *Manager
	store    *sqlite.Store
	clock    *clockwork.FakeClock
	mailer   *CaptureMailer
	sessions *session.MemoryStore
	hasher   *countingHasher
}

// countingHasher wraps a cheap argon2id hasher and counts calls.
type countingHasher struct {
	*cryptox.PasswordHasher
	hashes   int
	verifies int
}

func (h *countingHasher) Hash(pw string) (string, error) {
	h.hashes++
	return h.PasswordHasher.Hash(pw)
}

func (h *countingHasher) Verify(pw, encoded string) error {
	h.verifies++
	return h.PasswordHasher.Verify(pw, encoded)
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clock := clockwork.NewFakeClockAt(testEpoch)
	hasher := &countingHasher{PasswordHasher: &cryptox.PasswordHasher{Params: cryptox.Argon2Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	}}}

	authzCfg, err := authz.ParseConfig(testAuthz)
	require.NoError(t, err)

	key, err := jwtx.GenerateKey("k1", jwtx.AlgorithmHS256)
	require.NoError(t, err)
	ks, err := jwtx.NewKeySet(DefaultJWTKeyset, key)
	require.NoError(t, err)
	codec, err := jwtx.NewCodec(jwtx.Options{Issuer: "shield", Clock: clock}, ks)
	require.NoError(t, err)

	sealer, err := cryptox.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	cfg := Config{
		MagicLinkURL:     "https://auth.example.test/v1/login/magic-link/verify",
		RememberLength:   30 * 24 * time.Hour,
		RecordLogins:     true,
		RecordActiveDate: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		store:    st,
		clock:    clock,
		mailer:   &CaptureMailer{},
		sessions: session.NewMemoryStore(clock),
		hasher:   hasher,
	}
	f.m, err = NewManager(cfg, Deps{
		Store:      st,
		Sessions:   f.sessions,
		Passwords:  password.NewEngine(password.Config{}, hasher),
		Codec:      codec,
		Sealer:     sealer,
		Mailer:     f.mailer,
		Authorizer: authz.New(authzCfg, st),
		Clock:      clock,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) register(t *testing.T, username, email string) domain.User {
	t.Helper()
	u, err := f.m.Users().Register(context.Background(), NewUser{Username: username, Email: email, Password: alicePassword})
	require.NoError(t, err)
	return u
}

var codePattern = regexp.MustCompile(`<strong>(\d+)</strong>`)

func (f *fixture) lastCode(t *testing.T) string {
	t.Helper()
	msg, ok := f.mailer.Last()
	require.True(t, ok, "no mail sent")
	m := codePattern.FindStringSubmatch(msg.HTML)
	require.Len(t, m, 2, "no code in %q", msg.HTML)
	return m[1]
}

func TestReason_PublicMessage(t *testing.T) {
	require.Equal(t, InvalidCredentials.PublicMessage(), UnknownUser.PublicMessage())
	require.Equal(t, InvalidCredentials.Code(), UnknownUser.PublicCode())
	require.NotEqual(t, InvalidCredentials.Code(), UnknownUser.Code())
	require.Equal(t, "token_not_found", TokenNotFound.String())
}

func TestNewManager_Configuration(t *testing.T) {
	t.Run("missing store", func(t *testing.T) {
		_, err := NewManager(Config{}, Deps{})
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("unsupported second factor", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := NewManager(Config{SecondFactor: domain.MagicLink}, f.m.deps)
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("unknown default authenticator", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := NewManager(Config{DefaultAuthenticator: "carrier-pigeon"}, f.m.deps)
		require.ErrorIs(t, err, ErrUnknownAuthenticator)
	})
}

func TestSession_Check(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	alice := f.register(t, "alice", "alice@example.com")

	tests := []struct {
		name   string
		creds  Credentials
		reason Reason
	}{
		{"email", Credentials{Email: "Alice@Example.com", Password: alicePassword}, ReasonNone},
		{"username", Credentials{Username: "alice", Password: alicePassword}, ReasonNone},
		{"wrong password", Credentials{Email: "alice@example.com", Password: "wrong-password"}, InvalidCredentials},
		{"unknown user", Credentials{Email: "bob@example.com", Password: alicePassword}, UnknownUser},
		{"missing password", Credentials{Email: "alice@example.com"}, InvalidCredentials},
		{"missing identifier", Credentials{Password: alicePassword}, InvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.m.Begin(RequestInfo{}).Authenticator().Check(ctx, tt.creds)
			require.NoError(t, err)
			if tt.reason == ReasonNone {
				require.True(t, res.OK())
				require.Equal(t, alice.ID, res.User().ID)
				return
			}
			require.False(t, res.OK())
			require.Equal(t, tt.reason, res.Reason())
			require.Nil(t, res.User())
			require.Nil(t, res.Extra())
			require.Equal(t, InvalidCredentials.PublicMessage(), res.Message())
		})
	}
}

func TestSession_UnknownUserBurnsHash(t *testing.T) {
	f := newFixture(t, nil)
	before := f.hasher.verifies

	res, err := f.m.Begin(RequestInfo{}).Authenticator().Check(context.Background(),
		Credentials{Email: "nobody@example.com", Password: "whatever-password"})
	require.NoError(t, err)
	require.Equal(t, UnknownUser, res.Reason())
	require.Equal(t, before+1, f.hasher.verifies)
}

func TestSession_Gate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	alice := f.register(t, "alice", "alice@example.com")
	creds := Credentials{Email: "alice@example.com", Password: alicePassword}

	require.NoError(t, f.m.Users().Ban(ctx, alice.ID, "spamming"))
	res, err := f.m.Begin(RequestInfo{}).Authenticate(ctx, creds)
	require.NoError(t, err)
	require.Equal(t, UserBanned, res.Reason())
	require.Equal(t, "spamming", res.Extra())

	require.NoError(t, f.m.Users().Unban(ctx, alice.ID))
	require.NoError(t, f.m.Users().Deactivate(ctx, alice.ID))
	res, err = f.m.Begin(RequestInfo{}).Authenticate(ctx, creds)
	require.NoError(t, err)
	require.Equal(t, UserInactive, res.Reason())

	require.NoError(t, f.m.Users().Activate(ctx, alice.ID))
	res, err = f.m.Begin(RequestInfo{}).Authenticate(ctx, creds)
	require.NoError(t, err)
	require.True(t, res.OK())
}

func TestSession_LoginLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	alice := f.register(t, "alice", "alice@example.com")

	auth := f.m.Begin(RequestInfo{IP: "10.0.0.1", UserAgent: "test"})
	res, err := auth.Authenticate(ctx, Credentials{Email: "alice@example.com", Password: alicePassword})
	require.NoError(t, err)
	require.True(t, res.OK())
	require.Equal(t, alice.ID, auth.ID())

	carrier, ok := As[SessionCarrier](auth)
	require.True(t, ok)
	sid := carrier.SessionID()
	require.NotEmpty(t, sid)

	t.Run("session cookie logs in", func(t *testing.T) {
		next := f.m.Begin(RequestInfo{SessionID: sid})
		require.True(t, next.LoggedIn(ctx))
		require.Equal(t, alice.ID, next.ID())
	})

	t.Run("login is recorded", func(t *testing.T) {
		attempts, err := f.store.Logins().ListForUser(ctx, alice.ID, 10)
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		require.True(t, attempts[0].Success)
		require.Equal(t, "alice@example.com", attempts[0].Identifier)
		require.Equal(t, "10.0.0.1", attempts[0].IPAddress)
	})

	t.Run("logout ends the session", func(t *testing.T) {
		next := f.m.Begin(RequestInfo{SessionID: sid})
		require.NoError(t, next.Logout(ctx))
		require.Nil(t, next.User())
		require.False(t, f.m.Begin(RequestInfo{SessionID: sid}).LoggedIn(ctx))
	})
}

func TestSession_Expires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.register(t, "alice", "alice@example.com")

	auth := f.m.Begin(RequestInfo{})
	_, err := auth.Authenticate(ctx, Credentials{Username: "alice", Password: alicePassword})
	require.NoError(t, err)
	carrier, _ := As[SessionCarrier](auth)

	f.clock.Advance(DefaultSessionLifetime - time.Second)
	require.True(t, f.m.Begin(RequestInfo{SessionID: carrier.SessionID()}).LoggedIn(ctx))

	f.clock.Advance(2 * time.Second)
	require.False(t, f.m.Begin(RequestInfo{SessionID: carrier.SessionID()}).LoggedIn(ctx))
}

func TestSession_BanEndsSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	alice := f.register(t, "alice", "alice@example.com")

	auth := f.m.Begin(RequestInfo{})
	_, err := auth.Authenticate(ctx, Credentials{Email: "alice@example.com", Password: alicePassword})
	require.NoError(t, err)
	carrier, _ := As[SessionCarrier](auth)

	require.NoError(t, f.m.Users().Ban(ctx, alice.ID, ""))
	require.False(t, f.m.Begin(RequestInfo{SessionID: carrier.SessionID()}).LoggedIn(ctx))
}

func TestSession_RememberMe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	alice := f.register(t, "alice", "alice@example.com")

	auth := f.m.Begin(RequestInfo{})
	res, err := auth.Authenticate(ctx, Credentials{Email: "alice@example.com", Password: alicePassword, Remember: true})
	require.NoError(t, err)
	require.True(t, res.OK())

	rm, ok := As[RememberMeCapable](auth)
	require.True(t, ok)
	cookie := rm.RememberCookie()
	require.NotEmpty(t, cookie)

	// A request with only the remember cookie logs in and rotates it.
	next := f.m.Begin(RequestInfo{RememberToken: cookie})
	require.True(t, next.LoggedIn(ctx))
	require.Equal(t, alice.ID, next.ID())
	rotated, _ := As[RememberMeCapable](next)
	require.NotEmpty(t, rotated.RememberCookie())
	require.NotEqual(t, cookie, rotated.RememberCookie())

	// The old cookie is single use.
	require.False(t, f.m.Begin(RequestInfo{RememberToken: cookie}).LoggedIn(ctx))

	t.Run("tampered validator", func(t *testing.T) {
		selector, _, _ := splitRemember(rotated.RememberCookie())
		require.False(t, f.m.Begin(RequestInfo{RememberToken: selector + ":forged"}).LoggedIn(ctx))
	})

	t.Run("password change revokes", func(t *testing.T) {
		auth := f.m.Begin(RequestInfo{})
		_, err := auth.Authenticate(ctx, Credentials{Email: "alice@example.com", Password: alicePassword, Remember: true})
		require.NoError(t, err)
		rm, _ := As[RememberMeCapable](auth)
		selector, _, ok := splitRemember(rm.RememberCookie())
		require.True(t, ok)

		u, err := f.m.Users().Get(ctx, alice.ID)
		require.NoError(t, err)
		require.NoError(t, f.m.Users().SetPassword(ctx, &u, "an0ther-Long-secret"))

		_, err = f.store.RememberTokens().GetBySelector(ctx, selector)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.False(t, f.m.Begin(RequestInfo{RememberToken: rm.RememberCookie()}).LoggedIn(ctx))

		res, err := f.m.Begin(RequestInfo{}).Authenticate(ctx, Credentials{Email: "alice@example.com", Password: "an0ther-Long-secret"})
		require.NoError(t, err)
		require.True(t, res.OK())
	})
}

func TestSession_Email2FA(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *Config) { c.SecondFactor = domain.Email2FA })
	alice := f.register(t, "alice", "alice@example.com")

	auth := f.m.Begin(RequestInfo{})
	res, err := auth.Authenticate(ctx, Credentials{Email: "alice@example.com", Password: alicePassword})
	require.NoError(t, err)
	require.False(t, res.OK())
	require.Equal(t, ActionPending, res.Reason())
	require.Equal(t, alice.ID, res.User().ID)
	require.Equal(t, domain.Email2FA, res.Extra())
	require.False(t, auth.LoggedIn(ctx))

	carrier, _ := As[SessionCarrier](auth)
	sid := carrier.SessionID()
	require.False(t, f.m.Begin(RequestInfo{SessionID: sid}).LoggedIn(ctx))

	code := f.lastCode(t)
	next := f.m.Begin(RequestInfo{SessionID: sid})
	actions, ok := As[ActionCapable](next)
	require.True(t, ok)
	require.Equal(t, domain.Email2FA, actions.PendingAction(ctx))

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	res, err = actions.VerifyAction(ctx, wrong)
	require.NoError(t, err)
	require.Equal(t, CodeInvalid, res.Reason())

	res, err = actions.VerifyAction(ctx, code)
	require.NoError(t, err)
	require.True(t, res.OK())

	require.True(t, f.m.Begin(RequestInfo{SessionID: sid}).LoggedIn(ctx))

	_, err = actions.VerifyAction(ctx, code)
	require.ErrorIs(t, err, ErrNoPendingAction)
}

func TestSession_RememberMeAfterSecondFactor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *Config) { c.SecondFactor = domain.Email2FA })
	alice := f.register(t, "alice", "alice@example.com")

	auth := f.m.Begin(RequestInfo{})
	res, err := auth.Authenticate(ctx, Credentials{Email: "alice@example.com", Password: alicePassword, Remember: true})
	require.NoError(t, err)
	require.Equal(t, ActionPending, res.Reason())

	rm, _ := As[RememberMeCapable](auth)
	require.Empty(t, rm.RememberCookie(), "no remember token while the second factor is pending")

	carrier, _ := As[SessionCarrier](auth)
	next := f.m.Begin(RequestInfo{SessionID: carrier.SessionID()})
	actions, _ := As[ActionCapable](next)
	res, err = actions.VerifyAction(ctx, f.lastCode(t))
	require.NoError(t, err)
	require.True(t, res.OK())

	rm, _ = As[RememberMeCapable](next)
	cookie := rm.RememberCookie()
	require.NotEmpty(t, cookie)

	restored := f.m.Begin(RequestInfo{RememberToken: cookie})
	require.True(t, restored.LoggedIn(ctx))
	require.Equal(t, alice.ID, restored.ID())

	t.Run("not requested", func(t *testing.T) {
		auth := f.m.Begin(RequestInfo{})
		_, err := auth.Authenticate(ctx, Credentials{Email: "alice@example.com", Password: alicePassword})
		require.NoError(t, err)

		carrier, _ := As[SessionCarrier](auth)
		next := f.m.Begin(RequestInfo{SessionID: carrier.SessionID()})
		actions, _ := As[ActionCapable](next)
		res, err := actions.VerifyAction(ctx, f.lastCode(t))
		require.NoError(t, err)
		require.True(t, res.OK())

		rm, _ := As[RememberMeCapable](next)
		require.Empty(t, rm.RememberCookie())
	})
}

func TestSession_MailFailureOnSecondFactor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *Config) { c.SecondFactor = domain.Email2FA })
	f.register(t, "alice", "alice@example.com")
	f.mailer.Err = errors.New("smtp down")

	res, err := f.m.Begin(RequestInfo{}).Authenticate(ctx, Credentials{Email: "alice@example.com", Password: alicePassword})
	require.NoError(t, err)
	require.Equal(t, MailDeliveryFailed, res.Reason())
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("default group and weak password", func(t *testing.T) {
		f := newFixture(t, nil)
		alice := f.register(t, "alice", "Alice@Example.com")
		require.Equal(t, "alice@example.com", alice.Email)
		require.True(t, alice.Active)

		in, err := f.m.Authorizer().For(alice.ID).InGroup(ctx, "user")
		require.NoError(t, err)
		require.True(t, in)

		_, err = f.m.Users().Register(ctx, NewUser{Email: "bob@example.com", Password: "short"})
		require.ErrorIs(t, err, password.ErrWeakPassword)
		require.Equal(t, password.KindTooShort, password.KindOf(err))

		_, err = f.m.Users().Register(ctx, NewUser{Email: "alice@example.com", Password: alicePassword})
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("activation required", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.RequireActivation = true })
		bob := f.register(t, "bob", "bob@example.com")
		require.False(t, bob.Active)

		res, err := f.m.Begin(RequestInfo{}).Authenticate(ctx, Credentials{Email: "bob@example.com", Password: alicePassword})
		require.NoError(t, err)
		require.Equal(t, UserInactive, res.Reason())

		auth := f.m.Begin(RequestInfo{})
		actions, _ := As[ActionCapable](auth)
		res, err = actions.StartAction(ctx, &bob, domain.EmailActivate)
		require.NoError(t, err)
		require.Equal(t, ActionPending, res.Reason())

		res, err = actions.VerifyAction(ctx, f.lastCode(t))
		require.NoError(t, err)
		require.True(t, res.OK())
		require.True(t, res.User().Active)
		require.True(t, auth.LoggedIn(ctx))
	})
}

func TestAuth_UseAndAs(t *testing.T) {
	f := newFixture(t, nil)
	auth := f.m.Begin(RequestInfo{})
	require.Equal(t, SessionAlias, auth.Alias())

	_, ok := As[TokenScoped](auth)
	require.False(t, ok)
	_, ok = As[ActionCapable](auth)
	require.True(t, ok)

	_, err := auth.Use("carrier-pigeon")
	require.ErrorIs(t, err, ErrUnknownAuthenticator)
	require.Equal(t, SessionAlias, auth.Alias())

	_, err = auth.Use(TokensAlias)
	require.NoError(t, err)
	_, ok = As[TokenScoped](auth)
	require.True(t, ok)
	_, ok = As[TokenIssuer](auth)
	require.False(t, ok)

	_, err = auth.Use(JWTAlias)
	require.NoError(t, err)
	_, ok = As[TokenIssuer](auth)
	require.True(t, ok)
}

func TestAuth_Access(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.register(t, "alice", "alice@example.com")

	auth := f.m.Begin(RequestInfo{})
	require.Nil(t, auth.Access())

	_, err := auth.Authenticate(ctx, Credentials{Email: "alice@example.com", Password: alicePassword})
	require.NoError(t, err)

	subject := auth.Access()
	require.Same(t, subject, auth.Access())

	can, err := subject.Can(ctx, "users.create")
	require.NoError(t, err)
	require.False(t, can)

	require.NoError(t, subject.AddGroup(ctx, "admin"))
	can, err = subject.Can(ctx, "users.create")
	require.NoError(t, err)
	require.True(t, can)
}
