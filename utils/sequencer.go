package utils

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// SeedFunc returns the highest sequence already persisted for key.
type SeedFunc func(ctx context.Context, key string) (int64, error)

// RedisSequencer hands out monotonically increasing numbers per key with INCR.
// A missing counter is seeded from Seed under a distributed lock so two
// instances cannot both seed from a stale max.
type RedisSequencer struct {
	Client  *redis.Client
	Locker  *redislock.Client
	Seed    SeedFunc
	LockTTL time.Duration
}

func NewRedisSequencer(client *redis.Client, locker *redislock.Client, seed SeedFunc) *RedisSequencer {
	return &RedisSequencer{Client: client, Locker: locker, Seed: seed, LockTTL: 10 * time.Second}
}

func (s *RedisSequencer) Next(ctx context.Context, key string) (int64, error) {
	if s == nil || s.Client == nil {
		return 0, errors.New("service not ready (redis not initialized)")
	}
	cacheKey := key + "_seq"

	exists, err := s.Client.Exists(ctx, cacheKey).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		if err := s.seed(ctx, key, cacheKey); err != nil {
			return 0, err
		}
	}
	return s.Client.Incr(ctx, cacheKey).Result()
}

func (s *RedisSequencer) seed(ctx context.Context, key string, cacheKey string) error {
	if s.Locker == nil {
		return errors.New("service not ready (redis lock not initialized)")
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	lock, err := s.Locker.Obtain(ctx, "seq-seed:"+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 30),
	})
	if err == redislock.ErrNotObtained {
		return errors.New("could not obtain sequence seed lock for " + key)
	} else if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	var current int64
	if s.Seed != nil {
		current, err = s.Seed(ctx, key)
		if err != nil {
			return err
		}
	}
	// SetNX keeps a counter another instance seeded while we waited.
	return s.Client.SetNX(ctx, cacheKey, current, 0).Err()
}
