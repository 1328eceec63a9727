package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures talking to redis.
var ErrRedisUnavailable = errors.New("session: redis unavailable")

// RedisStore keeps sessions in redis with a TTL matching the record expiry.
// A per-user set indexes session ids for DeleteForUser.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	clock  clockwork.Clock
}

func NewRedisStore(client redis.UniversalClient, prefix string, clock clockwork.Clock) *RedisStore {
	if prefix == "" {
		prefix = "shield"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisStore{redis: client, prefix: prefix, clock: clock}
}

func (s *RedisStore) key(id string) string         { return s.prefix + ":sess:" + id }
func (s *RedisStore) userKey(userID string) string { return s.prefix + ":usess:" + userID }

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	ttl := rec.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return s.Delete(ctx, rec.ID)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("session: corrupt record %s: %w", id, err)
	}
	if !s.clock.Now().Before(rec.ExpiresAt) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return s.redis.Del(ctx, s.key(id)).Err()
	}
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, s.userKey(rec.UserID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) DeleteForUser(ctx context.Context, userID string) error {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.userKey(userID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
