package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// LoginTokenStore keeps one-time login tokens until they are used or expire.
// Keys hold a blake2b digest of the token, never the token itself.
type LoginTokenStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewLoginTokenStore(client *redisv9.Client, ttl time.Duration) *LoginTokenStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LoginTokenStore{client: client, ttl: ttl}
}

func (s *LoginTokenStore) Save(ctx context.Context, token, email string) error {
	if err := s.client.Set(ctx, s.key(token), email, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save login token failed: %w", err)
	}
	return nil
}

// Lookup returns the email a live token was issued for.
func (s *LoginTokenStore) Lookup(ctx context.Context, token string) (string, bool, error) {
	email, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redisv9.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get login token failed: %w", err)
	}
	return email, true, nil
}

// Delete consumes the token. Only one caller gets true for a given token.
func (s *LoginTokenStore) Delete(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete login token failed: %w", err)
	}
	return n == 1, nil
}

func (s *LoginTokenStore) key(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return "auth:login_token:" + hex.EncodeToString(sum[:])
}
