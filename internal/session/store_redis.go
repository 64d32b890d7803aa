package session

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

type redisTokenStore struct {
	client *redis.Client
	key    string
}

// NewRedisTokenStore keeps the token under a single Redis key, for
// setups where several shell sessions share one login.
func NewRedisTokenStore(client *redis.Client, key string) TokenStore {
	if client == nil {
		return nil
	}
	if key == "" {
		key = "inpass:token"
	}
	return &redisTokenStore{client: client, key: key}
}

func (s *redisTokenStore) Token(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(val), nil
}

func (s *redisTokenStore) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.ClearToken(ctx)
	}
	return s.client.Set(ctx, s.key, token, 0).Err()
}

func (s *redisTokenStore) ClearToken(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
