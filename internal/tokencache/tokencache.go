// Package tokencache tracks the single currently issued session token for
// each account. Login overwrites the entry, which is what invalidates any
// previously issued token: a websocket handshake presenting a token that no
// longer matches the cached one is refused even if its signature is valid.
package tokencache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoToken is returned when no current token exists for the account.
var ErrNoToken = errors.New("no current token for account")

type TokenCache interface {
	CurrentToken(ctx context.Context, accountId int) (string, error)
	SetCurrentToken(ctx context.Context, accountId int, token string, ttl time.Duration) error
	Revoke(ctx context.Context, accountId int) error
}

type RedisTokenCache struct {
	rdb *redis.Client
}

func NewRedisTokenCache(addr string) (*RedisTokenCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisTokenCache{rdb: rdb}, nil
}

func tokenKey(accountId int) string {
	return fmt.Sprintf("session-token:%d", accountId)
}

func (c *RedisTokenCache) CurrentToken(ctx context.Context, accountId int) (string, error) {
	token, err := c.rdb.Get(ctx, tokenKey(accountId)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("get current token: %w", err)
	}

	return token, nil
}

func (c *RedisTokenCache) SetCurrentToken(ctx context.Context, accountId int, token string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, tokenKey(accountId), token, ttl).Err(); err != nil {
		return fmt.Errorf("set current token: %w", err)
	}
	return nil
}

func (c *RedisTokenCache) Revoke(ctx context.Context, accountId int) error {
	if err := c.rdb.Del(ctx, tokenKey(accountId)).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (c *RedisTokenCache) Close() error {
	return c.rdb.Close()
}
