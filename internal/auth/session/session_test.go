package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRedisStore(t *testing.T, clock clockwork.Clock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "test", clock), mr
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T, clock clockwork.Clock) Store{
		"memory": func(t *testing.T, clock clockwork.Clock) Store { return NewMemoryStore(clock) },
		"redis": func(t *testing.T, clock clockwork.Clock) Store {
			s, _ := newRedisStore(t, clock)
			return s
		},
	}

	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := clockwork.NewFakeClockAt(epoch)
			s := build(t, clock)

			rec := Record{ID: NewID(), UserID: "u1", CreatedAt: epoch, ExpiresAt: epoch.Add(time.Hour)}
			require.NoError(t, s.Save(ctx, rec))

			got, err := s.Get(ctx, rec.ID)
			require.NoError(t, err)
			require.Equal(t, "u1", got.UserID)
			require.Empty(t, got.Pending)

			rec.Pending = "email_2fa"
			require.NoError(t, s.Save(ctx, rec))
			got, err = s.Get(ctx, rec.ID)
			require.NoError(t, err)
			require.Equal(t, "email_2fa", got.Pending)

			require.NoError(t, s.Delete(ctx, rec.ID))
			require.NoError(t, s.Delete(ctx, rec.ID))
			_, err = s.Get(ctx, rec.ID)
			require.ErrorIs(t, err, ErrNotFound)

			a := Record{ID: NewID(), UserID: "u2", ExpiresAt: epoch.Add(time.Hour)}
			b := Record{ID: NewID(), UserID: "u2", ExpiresAt: epoch.Add(time.Hour)}
			c := Record{ID: NewID(), UserID: "u3", ExpiresAt: epoch.Add(time.Hour)}
			for _, r := range []Record{a, b, c} {
				require.NoError(t, s.Save(ctx, r))
			}
			require.NoError(t, s.DeleteForUser(ctx, "u2"))

			_, err = s.Get(ctx, a.ID)
			require.ErrorIs(t, err, ErrNotFound)
			_, err = s.Get(ctx, b.ID)
			require.ErrorIs(t, err, ErrNotFound)
			_, err = s.Get(ctx, c.ID)
			require.NoError(t, err)

			clock.Advance(time.Hour)
			_, err = s.Get(ctx, c.ID)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRedisStore_KeyTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, clockwork.NewRealClock())

	rec := Record{ID: NewID(), UserID: "u1", ExpiresAt: time.Now().Add(30 * time.Minute)}
	require.NoError(t, s.Save(ctx, rec))
	require.True(t, mr.Exists("test:sess:"+rec.ID))

	mr.FastForward(31 * time.Minute)
	require.False(t, mr.Exists("test:sess:"+rec.ID))
}

func TestRedisStore_SaveExpiredDeletes(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	s, mr := newRedisStore(t, clock)

	rec := Record{ID: NewID(), UserID: "u1", ExpiresAt: epoch.Add(time.Minute)}
	require.NoError(t, s.Save(ctx, rec))

	rec.ExpiresAt = epoch
	require.NoError(t, s.Save(ctx, rec))
	require.False(t, mr.Exists("test:sess:"+rec.ID))
}
