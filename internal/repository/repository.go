package repository

import (
	"golang-backtest/config"
	"golang-backtest/pkg/cache"
	"golang-backtest/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	BinanceRepo  BinanceRepository
	BarRepo      BarRepository
	BacktestRepo BacktestRepository
}

func NewRepository(cfg *config.Config, inmemoryCache cache.Cache, db *gorm.DB, log *logger.Logger) (*Repository, error) {
	binanceRepo := NewBinanceRepository(cfg, log)

	return &Repository{
		BinanceRepo:  binanceRepo,
		BarRepo:      NewBarRepository(cfg, log, inmemoryCache, binanceRepo),
		BacktestRepo: NewBacktestRepository(db),
	}, nil
}
