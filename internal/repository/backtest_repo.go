package repository

import (
	"context"
	"fmt"

	"golang-backtest/internal/model"

	"gorm.io/gorm"
)

// BacktestRepository persists completed runs and their trade logs. It is
// the external persistence collaborator of the engine: the core only
// exports results, this layer writes them.
type BacktestRepository interface {
	Create(ctx context.Context, run *model.BacktestRun) error
	GetByID(ctx context.Context, id uint) (*model.BacktestRun, error)
	List(ctx context.Context, limit, offset int) ([]model.BacktestRun, error)
	ListScheduled(ctx context.Context) ([]model.BacktestRun, error)
	Update(ctx context.Context, run *model.BacktestRun) error
}

type backtestRepository struct {
	db *gorm.DB
}

func NewBacktestRepository(db *gorm.DB) BacktestRepository {
	return &backtestRepository{db: db}
}

func (r *backtestRepository) Create(ctx context.Context, run *model.BacktestRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create backtest run: %w", err)
	}
	return nil
}

func (r *backtestRepository) GetByID(ctx context.Context, id uint) (*model.BacktestRun, error) {
	var run model.BacktestRun
	if err := r.db.WithContext(ctx).Preload("Trades").First(&run, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get backtest run %d: %w", id, err)
	}
	return &run, nil
}

func (r *backtestRepository) List(ctx context.Context, limit, offset int) ([]model.BacktestRun, error) {
	var runs []model.BacktestRun
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list backtest runs: %w", err)
	}
	return runs, nil
}

func (r *backtestRepository) ListScheduled(ctx context.Context) ([]model.BacktestRun, error) {
	var runs []model.BacktestRun
	if err := r.db.WithContext(ctx).Where("scheduled = ?", true).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list scheduled backtest runs: %w", err)
	}
	return runs, nil
}

func (r *backtestRepository) Update(ctx context.Context, run *model.BacktestRun) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to update backtest run %d: %w", run.ID, err)
	}
	return nil
}
