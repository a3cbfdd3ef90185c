package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/storybird/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const removeChunkSize = 500

// SubscriptionStore is the durable set of push subscriptions keyed by endpoint.
type SubscriptionStore interface {
	Add(ctx context.Context, sub domain.Subscription) error
	Remove(ctx context.Context, endpoint string) error
	RemoveMany(ctx context.Context, endpoints []string) error
	List(ctx context.Context) ([]domain.Subscription, error)
}

type GormSubscriptionRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormSubscriptionRepo(db *gorm.DB) *GormSubscriptionRepo {
	return &GormSubscriptionRepo{db: db, now: time.Now}
}

func (r *GormSubscriptionRepo) Add(ctx context.Context, sub domain.Subscription) error {
	model := subscriptionModelFromDomain(sub)
	now := r.now().UTC()
	model.CreatedAt = now
	model.UpdatedAt = now

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("%w: upsert subscription: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *GormSubscriptionRepo) Remove(ctx context.Context, endpoint string) error {
	err := r.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Delete(&SubscriptionModel{}).Error
	if err != nil {
		return fmt.Errorf("%w: delete subscription: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *GormSubscriptionRepo) RemoveMany(ctx context.Context, endpoints []string) error {
	for start := 0; start < len(endpoints); start += removeChunkSize {
		end := min(start+removeChunkSize, len(endpoints))
		err := r.db.WithContext(ctx).
			Where("endpoint IN ?", endpoints[start:end]).
			Delete(&SubscriptionModel{}).Error
		if err != nil {
			return fmt.Errorf("%w: delete subscriptions: %v", domain.ErrStorage, err)
		}
	}
	return nil
}

func (r *GormSubscriptionRepo) List(ctx context.Context) ([]domain.Subscription, error) {
	var models []SubscriptionModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: list subscriptions: %v", domain.ErrStorage, err)
	}

	subs := make([]domain.Subscription, 0, len(models))
	for i := range models {
		sub, err := subscriptionModelToDomain(&models[i])
		if err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
