package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/kursadbilgin/storybird/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	CookieName        = "storybird_session"
	DefaultSessionTTL = 30 * 24 * time.Hour
)

// Session is a logged-in browser session.
type Session struct {
	ID        string
	ExpiresAt time.Time
}

// Service checks the shared password and manages sessions.
type Service struct {
	passwordHash []byte
	ttl          time.Duration
	sessions     SessionStore
	limiter      ratelimit.Limiter
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
}

// NewService builds the authenticator. An empty password hash disables
// authentication entirely. limiter may be nil.
func NewService(
	passwordHash string,
	ttl time.Duration,
	sessions SessionStore,
	limiter ratelimit.Limiter,
	logger *zap.Logger,
) (*Service, error) {
	hash := strings.TrimSpace(passwordHash)
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid AUTH_PASSWORD_HASH: %w", err)
		}
		if sessions == nil {
			return nil, fmt.Errorf("session store is required")
		}
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		passwordHash: []byte(hash),
		ttl:          ttl,
		sessions:     sessions,
		limiter:      limiter,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}, nil
}

// Enabled reports whether a password protects the application.
func (s *Service) Enabled() bool {
	return s != nil && len(s.passwordHash) > 0
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Login checks password and opens a new session. clientKey identifies the
// caller for rate limiting, usually the client IP.
func (s *Service) Login(ctx context.Context, password, clientKey string) (Session, error) {
	if !s.Enabled() {
		return Session{}, fmt.Errorf("%w: authentication is disabled", domain.ErrNotConfigured)
	}

	if err := s.checkRate(ctx, clientKey); err != nil {
		return Session{}, err
	}

	if password == "" {
		return Session{}, fmt.Errorf("%w: password is required", domain.ErrValidation)
	}

	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			observability.WithContextLogger(s.logger, ctx).Warn("login rejected",
				zap.String("client", clientKey),
			)
			return Session{}, fmt.Errorf("%w: invalid password", domain.ErrUnauthorized)
		}
		return Session{}, fmt.Errorf("failed to compare password: %w", err)
	}

	session := Session{
		ID:        s.newID(),
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, session.ID, s.ttl); err != nil {
		return Session{}, err
	}

	observability.WithContextLogger(s.logger, ctx).Info("login succeeded",
		zap.String("client", clientKey),
	)
	return session, nil
}

func (s *Service) checkRate(ctx context.Context, clientKey string) error {
	if s.limiter == nil {
		return nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}

	allowed, err := s.limiter.Allow(ctx, clientKey)
	if err != nil {
		// Limiter outages must not lock the owner out.
		observability.WithContextLogger(s.logger, ctx).Warn("login rate limiter unavailable",
			zap.Error(err),
		)
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: too many login attempts", domain.ErrRateLimited)
	}
	return nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if !s.Enabled() || strings.TrimSpace(sessionID) == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

// Authenticated reports whether sessionID is a live session. It is always
// true when authentication is disabled.
func (s *Service) Authenticated(ctx context.Context, sessionID string) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}
	return s.sessions.Exists(ctx, sessionID)
}
