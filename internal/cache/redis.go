package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the shared-deployment backend: several hosts serving the same
// viewer population can share one snapshot store. Entries expire at the
// freshness window so stale snapshots age out without a janitor.
type Redis struct {
	r   *redis.Client
	ttl time.Duration
}

type RedisOpts struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedis(ctx context.Context, opts RedisOpts) (*Redis, error) {
	r := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{r: r, ttl: opts.TTL}, nil
}

var _ Store = (*Redis)(nil)

func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.r.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Redis) Set(ctx context.Context, key string, value []byte) error {
	return s.r.Set(ctx, key, value, s.ttl).Err()
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	return s.r.Del(ctx, key).Err()
}

func (s *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.r.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Redis) Close() error {
	return s.r.Close()
}
