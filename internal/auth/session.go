package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/patrickmn/go-cache"
)

// SessionStore keeps the ids of logged-in browser sessions.
type SessionStore interface {
	Save(ctx context.Context, id string, ttl time.Duration) error
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

var _ SessionStore = (*MemorySessionStore)(nil)

// MemorySessionStore keeps sessions in process memory. Sessions are lost on
// restart.
type MemorySessionStore struct {
	sessions *cache.Cache
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, id string, ttl time.Duration) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: session ttl must be positive", domain.ErrValidation)
	}
	m.sessions.Set(id, struct{}{}, ttl)
	return nil
}

func (m *MemorySessionStore) Exists(_ context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	_, found := m.sessions.Get(id)
	return found, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.sessions.Delete(id)
	return nil
}
