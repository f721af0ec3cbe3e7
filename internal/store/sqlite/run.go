package sqlite

import (
	"context"
	"errors"
	"time"

	"marlin/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// runRepository implements the RunRepository interface.
type runRepository struct {
	db *gorm.DB
}

// NewRunRepo creates a new runRepository.
func NewRunRepo(db *gorm.DB) *runRepository {
	return &runRepository{db: db}
}

// Save saves or updates a backtest run.
func (r *runRepository) Save(ctx context.Context, run *model.RunModel) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Save(run).Error
}

// UpdateStatus transitions a run's lifecycle status, optionally recording a failure message.
func (r *runRepository) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return r.db.WithContext(ctx).Model(&model.RunModel{}).Where("id = ?", id).Updates(updates).Error
}

// FindByID finds a run by its ID; returns nil when absent.
func (r *runRepository) FindByID(ctx context.Context, id string) (*model.RunModel, error) {
	var run model.RunModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRecent lists recent runs, newest first.
func (r *runRepository) ListRecent(ctx context.Context, limit int) ([]model.RunModel, error) {
	var runs []model.RunModel
	if limit <= 0 {
		limit = 100
	}
	if err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
