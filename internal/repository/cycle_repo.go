package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/storybird/internal/domain"
	"gorm.io/gorm"
)

const defaultRecentCycles = 20

// CycleRecorder persists dispatch cycle summaries.
type CycleRecorder interface {
	Record(ctx context.Context, c *domain.DispatchCycle) error
}

type CycleRepository interface {
	CycleRecorder
	ListRecent(ctx context.Context, limit int) ([]domain.DispatchCycle, error)
}

type GormCycleRepo struct {
	db *gorm.DB
}

func NewGormCycleRepo(db *gorm.DB) *GormCycleRepo {
	return &GormCycleRepo{db: db}
}

func (r *GormCycleRepo) Record(ctx context.Context, c *domain.DispatchCycle) error {
	model := cycleModelFromDomain(c)
	if model == nil {
		return nil
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*c = *cycleModelToDomain(model)
	return nil
}

func (r *GormCycleRepo) ListRecent(ctx context.Context, limit int) ([]domain.DispatchCycle, error) {
	if limit <= 0 {
		limit = defaultRecentCycles
	}

	var models []DispatchCycleModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	cycles := make([]domain.DispatchCycle, 0, len(models))
	for i := range models {
		cycles = append(cycles, *cycleModelToDomain(&models[i]))
	}
	return cycles, nil
}
