package sqlite

import (
	"context"

	"marlin/internal/store/model"

	"gorm.io/gorm"
)

type cycleRepository struct {
	db *gorm.DB
}

func NewCycleRepo(db *gorm.DB) *cycleRepository {
	return &cycleRepository{db: db}
}

func (r *cycleRepository) SaveCycles(ctx context.Context, cycles []model.CycleModel) error {
	if len(cycles) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&cycles).Error
}

func (r *cycleRepository) ListBySession(ctx context.Context, sessionID string) ([]model.CycleModel, error) {
	var cycles []model.CycleModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("cycle_index ASC").
		Find(&cycles).Error; err != nil {
		return nil, err
	}
	return cycles, nil
}
