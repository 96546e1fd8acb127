package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 250 * time.Millisecond

// Redis keeps bucket state in Redis so several relay instances share limits.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(addr, keyPrefix string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  redisTimeout,
		ReadTimeout:  redisTimeout,
		WriteTimeout: redisTimeout,
	})

	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) Get(key string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, r.keyPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	return val, nil
}

func (r *Redis) SetWithExpiration(key string, value int64, expiration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	return r.client.Set(ctx, r.keyPrefix+key, value, expiration).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
