// Package session persists a browser's login under two fixed keys,
// "access_token" and "user", in storage scoped to that browser.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	KeyAccessToken = "access_token"
	KeyUser        = "user"
)

// Session is what a logged-in browser keeps between visits.
type Session struct {
	AccessToken string
	Email       string
}

// Storage is a per-browser key/value area.
type Storage interface {
	GetAll(ctx context.Context, browserID string) (map[string]string, error)
	SetAll(ctx context.Context, browserID string, values map[string]string) error
	Delete(ctx context.Context, browserID string, keys ...string) error
}

type Store struct {
	storage Storage
}

func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

type userRecord struct {
	Email string `json:"email"`
}

// Load returns the persisted session, or nil when the browser has none. Both
// keys must be present.
func (s *Store) Load(ctx context.Context, browserID string) (*Session, error) {
	values, err := s.storage.GetAll(ctx, browserID)
	if err != nil {
		return nil, fmt.Errorf("load session failed: %w", err)
	}
	token := strings.TrimSpace(values[KeyAccessToken])
	rawUser := values[KeyUser]
	if token == "" || rawUser == "" {
		return nil, nil
	}

	var user userRecord
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, fmt.Errorf("decode stored user failed: %w", err)
	}
	return &Session{AccessToken: token, Email: user.Email}, nil
}

func (s *Store) Save(ctx context.Context, browserID string, sess Session) error {
	user, err := json.Marshal(userRecord{Email: sess.Email})
	if err != nil {
		return fmt.Errorf("encode user failed: %w", err)
	}
	if err := s.storage.SetAll(ctx, browserID, map[string]string{
		KeyAccessToken: sess.AccessToken,
		KeyUser:        string(user),
	}); err != nil {
		return fmt.Errorf("save session failed: %w", err)
	}
	return nil
}

// Clear removes both keys.
func (s *Store) Clear(ctx context.Context, browserID string) error {
	if err := s.storage.Delete(ctx, browserID, KeyAccessToken, KeyUser); err != nil {
		return fmt.Errorf("clear session failed: %w", err)
	}
	return nil
}
