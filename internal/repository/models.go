package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/storybird/internal/domain"
)

// SubscriptionModel is the persistence model for the push_subscriptions table.
type SubscriptionModel struct {
	Endpoint  string `gorm:"type:text;primaryKey"`
	Payload   string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SubscriptionModel) TableName() string {
	return "push_subscriptions"
}

// DispatchCycleModel is the persistence model for dispatch_cycles.
type DispatchCycleModel struct {
	ID        string             `gorm:"type:uuid;primaryKey"`
	Trigger   string             `gorm:"type:varchar(32);not null"`
	Attempted int                `gorm:"not null;default:0"`
	Delivered int                `gorm:"not null;default:0"`
	Transient int                `gorm:"not null;default:0"`
	Permanent int                `gorm:"not null;default:0"`
	Pruned    int                `gorm:"not null;default:0"`
	Status    domain.CycleStatus `gorm:"type:varchar(20);not null"`
	Error     *string            `gorm:"type:text"`
	CreatedAt time.Time
}

func (DispatchCycleModel) TableName() string {
	return "dispatch_cycles"
}

func subscriptionModelFromDomain(s domain.Subscription) *SubscriptionModel {
	return &SubscriptionModel{
		Endpoint:  s.Endpoint,
		Payload:   string(s.Raw),
		CreatedAt: s.CreatedAt,
	}
}

func subscriptionModelToDomain(m *SubscriptionModel) (domain.Subscription, error) {
	sub, err := domain.ParseSubscription([]byte(m.Payload))
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.CreatedAt = m.CreatedAt
	return sub, nil
}

func cycleModelFromDomain(c *domain.DispatchCycle) *DispatchCycleModel {
	if c == nil {
		return nil
	}

	return &DispatchCycleModel{
		ID:        c.ID,
		Trigger:   c.Trigger,
		Attempted: c.Attempted,
		Delivered: c.Delivered,
		Transient: c.Transient,
		Permanent: c.Permanent,
		Pruned:    c.Pruned,
		Status:    c.Status,
		Error:     c.Error,
		CreatedAt: c.CreatedAt,
	}
}

func cycleModelToDomain(m *DispatchCycleModel) *domain.DispatchCycle {
	if m == nil {
		return nil
	}

	return &domain.DispatchCycle{
		ID:        m.ID,
		Trigger:   m.Trigger,
		Attempted: m.Attempted,
		Delivered: m.Delivered,
		Transient: m.Transient,
		Permanent: m.Permanent,
		Pruned:    m.Pruned,
		Status:    m.Status,
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
	}
}

// decodeSubscriptions parses stored blobs, dropping entries that are no
// longer valid subscriptions.
func decodeSubscriptions(blobs []json.RawMessage) []domain.Subscription {
	subs := make([]domain.Subscription, 0, len(blobs))
	for _, blob := range blobs {
		sub, err := domain.ParseSubscription(blob)
		if err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	return subs
}
