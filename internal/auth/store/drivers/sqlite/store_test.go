package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s store.Store, email string) domain.User {
	t.Helper()
	u := domain.User{ID: idx.New().String(), Email: email, Active: true}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func TestMigrations_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := domain.User{ID: idx.New().String(), Username: "alice", Email: "alice@x.com"}
	require.NoError(t, s.Users().Create(ctx, u))

	t.Run("duplicate email", func(t *testing.T) {
		err := s.Users().Create(ctx, domain.User{ID: idx.New().String(), Email: "alice@x.com"})
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("lookups", func(t *testing.T) {
		byEmail, err := s.Users().GetByEmail(ctx, "alice@x.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)

		byName, err := s.Users().GetByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, u.ID, byName.ID)

		_, err = s.Users().GetByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("status and activation", func(t *testing.T) {
		require.NoError(t, s.Users().SetActive(ctx, u.ID, true))
		require.NoError(t, s.Users().SetStatus(ctx, u.ID, domain.StatusBanned, "spam"))

		got, err := s.Users().GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.Active)
		require.True(t, got.IsBanned())
		require.Equal(t, "spam", got.BanMessage())

		require.ErrorIs(t, s.Users().SetActive(ctx, "missing", true), store.ErrNotFound)
	})

	t.Run("last active", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.Users().TouchLastActive(ctx, u.ID, at))
		got, err := s.Users().GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastActive)
		require.True(t, at.Equal(*got.LastActive))
	})

	t.Run("list", func(t *testing.T) {
		users, err := s.Users().List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
	})
}

func TestIdentities_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "bob@x.com")

	tok := domain.Identity{
		ID: idx.New().String(), UserID: u.ID, Type: domain.AccessToken,
		Name: "ci", Secret: "fp-1", Scopes: []string{"users.read", "users.write"},
	}
	require.NoError(t, s.Identities().Create(ctx, tok))

	t.Run("duplicate secret", func(t *testing.T) {
		dup := tok
		dup.ID = idx.New().String()
		require.ErrorIs(t, s.Identities().Create(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("same secret other type", func(t *testing.T) {
		other := domain.Identity{ID: idx.New().String(), UserID: u.ID, Type: domain.MagicLink, Secret: "fp-1"}
		require.NoError(t, s.Identities().Create(ctx, other))
	})

	t.Run("by secret", func(t *testing.T) {
		got, err := s.Identities().GetBySecret(ctx, domain.AccessToken, "fp-1")
		require.NoError(t, err)
		require.Equal(t, tok.ID, got.ID)
		require.Equal(t, []string{"users.read", "users.write"}, got.Scopes)
		require.Nil(t, got.Expires)
	})

	t.Run("list by type", func(t *testing.T) {
		second := domain.Identity{ID: idx.New().String(), UserID: u.ID, Type: domain.AccessToken, Name: "cli", Secret: "fp-2"}
		require.NoError(t, s.Identities().Create(ctx, second))

		all, err := s.Identities().ListByType(ctx, u.ID, domain.AccessToken)
		require.NoError(t, err)
		require.Len(t, all, 2)
	})

	t.Run("delete by id scoped to owner", func(t *testing.T) {
		other := seedUser(t, s, "eve@x.com")
		require.ErrorIs(t, s.Identities().DeleteByID(ctx, other.ID, tok.ID), store.ErrNotFound)
		require.NoError(t, s.Identities().DeleteByID(ctx, u.ID, tok.ID))
	})

	t.Run("touch", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		got, err := s.Identities().GetBySecret(ctx, domain.AccessToken, "fp-2")
		require.NoError(t, err)
		require.NoError(t, s.Identities().Touch(ctx, got.ID, at, "10.0.0.1"))

		got, err = s.Identities().GetBySecret(ctx, domain.AccessToken, "fp-2")
		require.NoError(t, err)
		require.Equal(t, "10.0.0.1", got.LastUsedIP)
		require.True(t, at.Equal(*got.LastUsedAt))
	})

	t.Run("advance only moves forward", func(t *testing.T) {
		got, err := s.Identities().GetBySecret(ctx, domain.AccessToken, "fp-2")
		require.NoError(t, err)
		at := *got.LastUsedAt

		require.ErrorIs(t, s.Identities().Advance(ctx, got.ID, at), store.ErrNotFound)
		require.ErrorIs(t, s.Identities().Advance(ctx, got.ID, at.Add(-time.Minute)), store.ErrNotFound)
		require.NoError(t, s.Identities().Advance(ctx, got.ID, at.Add(30*time.Second)))

		got, err = s.Identities().GetBySecret(ctx, domain.AccessToken, "fp-2")
		require.NoError(t, err)
		require.True(t, at.Add(30*time.Second).Equal(*got.LastUsedAt))
	})
}

func TestIdentities_Consume(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "carol@x.com")

	code := domain.Identity{ID: idx.New().String(), UserID: u.ID, Type: domain.EmailActivate, Secret: "000123"}
	require.NoError(t, s.Identities().Create(ctx, code))

	got, err := s.Identities().ConsumeBySecret(ctx, domain.EmailActivate, "000123")
	require.NoError(t, err)
	require.Equal(t, code.ID, got.ID)
	require.Equal(t, u.ID, got.UserID)

	_, err = s.Identities().ConsumeBySecret(ctx, domain.EmailActivate, "000123")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Identities().Consume(ctx, code.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestIdentities_ConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "dave@x.com")

	link := domain.Identity{ID: idx.New().String(), UserID: u.ID, Type: domain.MagicLink, Secret: "fp-link"}
	require.NoError(t, s.Identities().Create(ctx, link))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Identities().Consume(ctx, link.ID)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestIdentities_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "erin@x.com")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	for i, exp := range []*time.Time{&past, &now, &future, nil} {
		require.NoError(t, s.Identities().Create(ctx, domain.Identity{
			ID: idx.New().String(), UserID: u.ID, Type: domain.AccessToken,
			Secret: "fp-" + string(rune('a'+i)), Expires: exp,
		}))
	}

	n, err := s.Identities().DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	left, err := s.Identities().ListByType(ctx, u.ID, domain.AccessToken)
	require.NoError(t, err)
	require.Len(t, left, 2)
}

func TestIdentities_ForceResetAndSecret2(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "fred@x.com")

	require.ErrorIs(t, s.Identities().SetForceReset(ctx, u.ID, true), store.ErrNotFound)

	pw := domain.Identity{ID: idx.New().String(), UserID: u.ID, Type: domain.EmailPassword, Secret: u.Email, Secret2: "hash-1"}
	require.NoError(t, s.Identities().Create(ctx, pw))
	require.NoError(t, s.Identities().SetForceReset(ctx, u.ID, true))
	require.NoError(t, s.Identities().UpdateSecret2(ctx, pw.ID, "hash-2"))

	got, err := s.Identities().GetByType(ctx, u.ID, domain.EmailPassword)
	require.NoError(t, err)
	require.True(t, got.ForceReset)
	require.Equal(t, "hash-2", got.Secret2)
}

func TestMemberships(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "gina@x.com")

	require.NoError(t, s.Groups().Add(ctx, u.ID, "admin", "beta"))
	require.NoError(t, s.Groups().Add(ctx, u.ID, "admin"))

	groups, err := s.Groups().List(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "beta"}, groups)

	require.NoError(t, s.Groups().Remove(ctx, u.ID, "beta", "missing"))
	groups, err = s.Groups().List(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, groups)

	require.NoError(t, s.Permissions().Add(ctx, u.ID, "users.create"))
	perms, err := s.Permissions().List(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"users.create"}, perms)
}

func TestTx_Rollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "hank@x.com")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Groups().Add(ctx, u.ID, "admin"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	groups, err := s.Groups().List(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, groups)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Groups().Add(ctx, u.ID, "admin")
	}))
	groups, err = s.Groups().List(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, groups)
}

func TestLoginsAndRememberTokens(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "ivy@x.com")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Logins().Record(ctx, domain.LoginAttempt{
		IDType: "email_password", Identifier: u.Email, UserID: u.ID, Success: true, CreatedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, s.Logins().Record(ctx, domain.LoginAttempt{
		IDType: "email_password", Identifier: "nobody@x.com", Success: false, CreatedAt: now,
	}))

	attempts, err := s.Logins().ListForUser(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.True(t, attempts[0].Success)

	n, err := s.Logins().DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	rt := domain.RememberToken{ID: idx.New().String(), Selector: "sel", HashedValidator: "h", UserID: u.ID, Expires: now}
	require.NoError(t, s.RememberTokens().Create(ctx, rt))
	got, err := s.RememberTokens().GetBySelector(ctx, "sel")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)

	n, err = s.RememberTokens().DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	_, err = s.RememberTokens().GetBySelector(ctx, "sel")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsers_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "jack@x.com")

	require.NoError(t, s.Identities().Create(ctx, domain.Identity{ID: idx.New().String(), UserID: u.ID, Type: domain.TOTP, Secret: "JBSWY3DPEHPK3PXP"}))
	require.NoError(t, s.Users().Delete(ctx, u.ID))

	_, err := s.Identities().GetByType(ctx, u.ID, domain.TOTP)
	require.ErrorIs(t, err, store.ErrNotFound)
}
