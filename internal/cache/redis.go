package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionCache(client *redis.Client, ttl time.Duration) *RedisSessionCache {
	return &RedisSessionCache{client: client, ttl: ttl}
}

func (r RedisSessionCache) SetSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshalling session: %w", err)
	}
	key := formatKey(session.ID)
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

func (r RedisSessionCache) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	key := formatKey(sessionID)
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	var session Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("unmarshalling session: %w", err)
	}
	return &session, nil
}

func (r RedisSessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	key := formatKey(sessionID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func formatKey(sessionID string) string {
	return fmt.Sprintf("chat:session:%s", sessionID)
}
