package session

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// RedisStorage keeps each browser's keys in one hash that expires after ttl
// without writes.
type RedisStorage struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRedisStorage(client *redisv9.Client, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisStorage{client: client, ttl: ttl}
}

func (r *RedisStorage) GetAll(ctx context.Context, browserID string) (map[string]string, error) {
	values, err := r.client.HGetAll(ctx, r.key(browserID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	return values, nil
}

func (r *RedisStorage) SetAll(ctx context.Context, browserID string, values map[string]string) error {
	key := r.key(browserID)
	pairs := make([]interface{}, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.HSet(ctx, key, pairs...)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, browserID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key(browserID), keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) key(browserID string) string {
	return "web:storage:" + browserID
}
