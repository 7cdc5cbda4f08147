package localstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/poster-shop/internal/session"
	"github.com/go-redis/redis/v8"
)

const defaultRedisTimeout = 2 * time.Second

// RedisStorage keeps values in Redis under a key prefix. Values written
// through it expire after ttl when ttl > 0.
type RedisStorage struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

var _ session.Storage = (*RedisStorage)(nil)

func NewRedisStorage(client *redis.Client, prefix string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		timeout: defaultRedisTimeout,
	}
}

// ConnectRedis parses a redis:// URL and pings the server
func ConnectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), defaultRedisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Printf("[Redis] Connected to %s", opts.Addr)
	return client, nil
}

func (r *RedisStorage) key(k string) string {
	return r.prefix + k
}

func (r *RedisStorage) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", session.ErrUnavailable, op, err)
}

func (r *RedisStorage) Get(key string) (string, bool, error) {
	ctx, cancel := r.withTimeout()
	defer cancel()

	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return value, true, nil
}

func (r *RedisStorage) Set(key, value string) error {
	ctx, cancel := r.withTimeout()
	defer cancel()

	if err := r.client.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (r *RedisStorage) Remove(key string) error {
	ctx, cancel := r.withTimeout()
	defer cancel()

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}
