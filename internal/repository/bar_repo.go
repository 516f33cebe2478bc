package repository

import (
	"context"
	"fmt"
	"time"

	"golang-backtest/config"
	"golang-backtest/internal/backtest"
	"golang-backtest/internal/model"
	"golang-backtest/pkg/cache"
	"golang-backtest/pkg/logger"
)

// BarRepository assembles the pre-loaded, in-memory bar source the engine
// runs against. Series are cached so repeated runs (sweeps, scheduled
// re-runs) do not refetch the same history.
type BarRepository interface {
	Source(ctx context.Context, symbols []string, interval string, start, end time.Time) (backtest.BarSource, error)
}

type barRepository struct {
	cfg         *config.Config
	log         *logger.Logger
	cache       cache.Cache
	binanceRepo BinanceRepository
}

func NewBarRepository(cfg *config.Config, log *logger.Logger, inmemoryCache cache.Cache, binanceRepo BinanceRepository) BarRepository {
	return &barRepository{
		cfg:         cfg,
		log:         log,
		cache:       inmemoryCache,
		binanceRepo: binanceRepo,
	}
}

// Source fetches (or reads from cache) the full bar series for every
// requested symbol and wraps them in a static source. All I/O happens
// here, before the simulation starts; the engine's hot path stays free of
// network calls.
func (r *barRepository) Source(ctx context.Context, symbols []string, interval string, start, end time.Time) (backtest.BarSource, error) {
	series := make(map[string][]model.Bar, len(symbols))

	for _, symbol := range symbols {
		bars, err := r.symbolBars(ctx, symbol, interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to load bars for %s: %w", symbol, err)
		}
		if len(bars) == 0 {
			r.log.WarnContext(ctx, "No bars returned for symbol",
				logger.StringField("symbol", symbol),
				logger.StringField("interval", interval),
			)
			continue
		}
		series[symbol] = bars
	}

	return backtest.NewStaticBarSource(series), nil
}

func (r *barRepository) symbolBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.Bar, error) {
	key := barCacheKey(symbol, interval, start, end)
	if bars, found := cache.GetFromCache[[]model.Bar](key); found {
		return bars, nil
	}

	bars, err := r.binanceRepo.GetBars(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, bars, r.cfg.Cache.DefaultExpiration)
	return bars, nil
}

func barCacheKey(symbol, interval string, start, end time.Time) string {
	return fmt.Sprintf("bars:%s:%s:%d:%d", symbol, interval, start.Unix(), end.Unix())
}
