package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/shield/pkg/idx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

func TestHousekeeping_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	user := domain.User{ID: idx.New().String(), Email: "alice@example.test", Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.Users().Create(ctx, user))

	past, future := now.Add(-time.Minute), now.Add(time.Hour)
	for _, ident := range []domain.Identity{
		{ID: idx.New().String(), UserID: user.ID, Type: domain.MagicLink, Secret: "expired", Expires: &past},
		{ID: idx.New().String(), UserID: user.ID, Type: domain.Email2FA, Secret: "123456", Expires: &future},
		{ID: idx.New().String(), UserID: user.ID, Type: domain.AccessToken, Secret: "forever"},
	} {
		require.NoError(t, st.Identities().Create(ctx, ident))
	}

	require.NoError(t, st.RememberTokens().Create(ctx, domain.RememberToken{
		ID: idx.New().String(), Selector: "old", HashedValidator: "x", UserID: user.ID, Expires: past,
	}))
	require.NoError(t, st.RememberTokens().Create(ctx, domain.RememberToken{
		ID: idx.New().String(), Selector: "live", HashedValidator: "x", UserID: user.ID, Expires: future,
	}))

	require.NoError(t, st.Logins().Record(ctx, domain.LoginAttempt{IDType: "email_password", UserID: user.ID, CreatedAt: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, st.Logins().Record(ctx, domain.LoginAttempt{IDType: "email_password", UserID: user.ID, CreatedAt: now.Add(-time.Hour)}))

	h := NewHousekeeping(st, slogx.Discard(), clock, time.Hour, 90*24*time.Hour)
	report := h.RunOnce(ctx)
	require.Equal(t, HousekeepingReport{Identities: 1, RememberTokens: 1, Logins: 1}, report)

	_, err = st.RememberTokens().GetBySelector(ctx, "live")
	require.NoError(t, err)
	_, err = st.Identities().GetByType(ctx, user.ID, domain.Email2FA)
	require.NoError(t, err)

	logins, err := st.Logins().ListForUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, logins, 1)

	// A second pass finds nothing.
	require.Equal(t, HousekeepingReport{}, h.RunOnce(ctx))
}

func TestHousekeeping_StartStop(t *testing.T) {
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clock := clockwork.NewFakeClock()
	h := NewHousekeeping(st, slogx.Discard(), clock, 0, 0)
	require.Equal(t, time.Hour, h.Interval)

	h.Start()
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Hour)
	h.Stop()
}
