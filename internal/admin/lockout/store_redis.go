package lockout

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "formdesk:login_failures:"

// RedisStore shares counters across instances. The window is a key TTL set
// on the first failure, so the now argument is ignored.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Failures(ctx context.Context, key string, _ time.Time) (int, error) {
	n, err := s.client.Get(ctx, keyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecordFailure increments and arms the TTL in one round trip. ExpireNX
// leaves the TTL of an open window untouched.
func (s *RedisStore) RecordFailure(ctx context.Context, key string, _ time.Time, window time.Duration) (int, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, keyPrefix+key)
		pipe.ExpireNX(ctx, keyPrefix+key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}
