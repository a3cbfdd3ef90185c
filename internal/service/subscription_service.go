package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/observability"
	"github.com/kursadbilgin/storybird/internal/repository"
	"go.uber.org/zap"
)

// SubscriptionService owns the subscribe and unsubscribe flows.
type SubscriptionService struct {
	store     repository.SubscriptionStore
	publicKey string
	enabled   bool
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewSubscriptionService(
	store repository.SubscriptionStore,
	enabled bool,
	publicKey string,
	logger *zap.Logger,
) (*SubscriptionService, error) {
	if store == nil {
		return nil, fmt.Errorf("subscription store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SubscriptionService{
		store:     store,
		publicKey: strings.TrimSpace(publicKey),
		enabled:   enabled,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *SubscriptionService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// PublicKey returns the VAPID application server key browsers subscribe with.
func (s *SubscriptionService) PublicKey() (string, error) {
	if !s.enabled || s.publicKey == "" {
		return "", fmt.Errorf("%w: push notifications are not configured", domain.ErrNotConfigured)
	}
	return s.publicKey, nil
}

// Subscribe stores the browser subscription object, replacing any previous
// subscription with the same endpoint.
func (s *SubscriptionService) Subscribe(ctx context.Context, raw []byte) (domain.Subscription, error) {
	if !s.enabled {
		s.metrics.IncSubscriptionOp("subscribe", "disabled")
		return domain.Subscription{}, fmt.Errorf("%w: push notifications are not configured", domain.ErrNotConfigured)
	}

	sub, err := domain.ParseSubscription(raw)
	if err != nil {
		s.metrics.IncSubscriptionOp("subscribe", "invalid")
		return domain.Subscription{}, err
	}
	sub.CreatedAt = s.now().UTC()

	if err := s.store.Add(ctx, sub); err != nil {
		s.metrics.IncSubscriptionOp("subscribe", "error")
		observability.WithContextLogger(s.logger, ctx).Error("failed to store subscription",
			zap.String("endpoint", sub.Endpoint),
			zap.Error(err),
		)
		return domain.Subscription{}, err
	}

	s.metrics.IncSubscriptionOp("subscribe", "ok")
	observability.WithContextLogger(s.logger, ctx).Info("push subscription stored",
		zap.String("endpoint", sub.Endpoint),
	)
	return sub, nil
}

func (s *SubscriptionService) Unsubscribe(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		s.metrics.IncSubscriptionOp("unsubscribe", "invalid")
		return fmt.Errorf("%w: endpoint is required", domain.ErrValidation)
	}

	if err := s.store.Remove(ctx, endpoint); err != nil {
		s.metrics.IncSubscriptionOp("unsubscribe", "error")
		return err
	}

	s.metrics.IncSubscriptionOp("unsubscribe", "ok")
	observability.WithContextLogger(s.logger, ctx).Info("push subscription removed",
		zap.String("endpoint", endpoint),
	)
	return nil
}

// Count returns the number of stored subscriptions.
func (s *SubscriptionService) Count(ctx context.Context) (int, error) {
	subs, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}
