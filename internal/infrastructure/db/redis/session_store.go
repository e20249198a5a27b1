package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/framez/framez-core/internal/core/domain"
)

const defaultSessionKey = "framez:session"

// SessionStore persists the auth session as a JSON document under a single
// key so a restarted process can restore it.
type SessionStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewSessionStore creates a SessionStore. An empty key falls back to
// defaultSessionKey; ttl <= 0 keeps the entry until it is cleared.
func NewSessionStore(client *redis.Client, key string, ttl time.Duration) *SessionStore {
	if key == "" {
		key = defaultSessionKey
	}
	if ttl < 0 {
		ttl = 0
	}
	return &SessionStore{client: client, key: key, ttl: ttl}
}

// Load returns the stored session, or nil when nothing is stored.
func (s *SessionStore) Load(ctx context.Context) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return decodeSession(raw)
}

// Save overwrites the stored session.
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return s.Clear(ctx)
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.key, raw, s.ttl).Err()
}

// Clear removes the stored session.
func (s *SessionStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func decodeSession(raw []byte) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.AccessToken == "" && session.RefreshToken == "" {
		return nil, nil
	}
	return &session, nil
}
