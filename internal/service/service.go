package service

import (
	"golang-backtest/config"
	"golang-backtest/internal/repository"
	"golang-backtest/internal/strategy"
	"golang-backtest/pkg/logger"
)

type Service struct {
	BacktestService  BacktestService
	SweepService     SweepService
	SchedulerService SchedulerService
}

func NewService(cfg *config.Config, log *logger.Logger, repo *repository.Repository) *Service {
	registry := strategy.NewRegistry()

	backtestService := NewBacktestService(cfg, log, repo, registry)

	return &Service{
		BacktestService:  backtestService,
		SweepService:     NewSweepService(cfg, log, repo, registry),
		SchedulerService: NewSchedulerService(cfg, log, repo, backtestService),
	}
}
