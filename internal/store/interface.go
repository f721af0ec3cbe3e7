package store

import (
	"context"

	"marlin/internal/store/model"
)

// Store is the entry point for database access.
type Store interface {
	// Runs returns the backtest run repository.
	Runs() RunRepository
	// Cycles returns the walk-forward cycle repository.
	Cycles() CycleRepository
	// Close closes the store connection.
	Close() error
}

// RunRepository handles backtest run persistence.
type RunRepository interface {
	Save(ctx context.Context, run *model.RunModel) error
	UpdateStatus(ctx context.Context, id, status, errMsg string) error
	FindByID(ctx context.Context, id string) (*model.RunModel, error)
	ListRecent(ctx context.Context, limit int) ([]model.RunModel, error)
}

// CycleRepository handles walk-forward cycle persistence.
type CycleRepository interface {
	SaveCycles(ctx context.Context, cycles []model.CycleModel) error
	ListBySession(ctx context.Context, sessionID string) ([]model.CycleModel, error)
}
