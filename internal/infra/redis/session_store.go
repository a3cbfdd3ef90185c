package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/storybird/internal/auth"
	"github.com/kursadbilgin/storybird/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "storybird:session:"

var _ auth.SessionStore = (*SessionStore)(nil)

// SessionStore shares login sessions between instances.
type SessionStore struct {
	client *goredis.Client
}

func NewSessionStore(client *goredis.Client) (*SessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &SessionStore{client: client}, nil
}

func (s *SessionStore) Save(ctx context.Context, id string, ttl time.Duration) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: session ttl must be positive", domain.ErrValidation)
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+id, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: save session: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *SessionStore) Exists(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}

	err := s.client.Get(ctx, sessionKeyPrefix+id).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read session: %v", domain.ErrStorage, err)
	}
	return true, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("%w: delete session: %v", domain.ErrStorage, err)
	}
	return nil
}
