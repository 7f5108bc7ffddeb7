package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenNotCached = errors.New("auth token not cached")

// TokenCache holds the external clinic system's bearer token between
// requests, with an explicit lifetime. The adapter owns the cache; nothing
// else reads it.
type TokenCache interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
}

type redisTokenCache struct {
	client *redis.Client
	key    string
}

// NewRedisTokenCache creates a token cache backed by a single Redis key, so
// all server instances share one token and re-authenticate at most once per
// expiry.
func NewRedisTokenCache(client *redis.Client, key string) TokenCache {
	return &redisTokenCache{client: client, key: key}
}

func (c *redisTokenCache) Get(ctx context.Context) (string, error) {
	token, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotCached
	}
	if err != nil {
		return "", fmt.Errorf("get cached token: %w", err)
	}
	return token, nil
}

func (c *redisTokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("cache token: %w", err)
	}
	return nil
}
