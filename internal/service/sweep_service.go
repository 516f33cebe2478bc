package service

import (
	"context"
	"fmt"

	"golang-backtest/config"
	"golang-backtest/internal/backtest"
	"golang-backtest/internal/dto"
	"golang-backtest/internal/repository"
	"golang-backtest/internal/strategy"
	"golang-backtest/pkg/logger"
)

// SweepService fans a base backtest request out over parameter variants.
// Every variant runs against the same pre-loaded bar source.
type SweepService interface {
	RunSweep(ctx context.Context, req dto.SweepRequest) (*dto.SweepResponse, error)
}

type sweepService struct {
	cfg      *config.Config
	log      *logger.Logger
	repo     *repository.Repository
	registry *strategy.Registry
}

func NewSweepService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	registry *strategy.Registry,
) SweepService {
	return &sweepService{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		registry: registry,
	}
}

func (s *sweepService) RunSweep(ctx context.Context, req dto.SweepRequest) (*dto.SweepResponse, error) {
	base := req.Base

	interval, err := resolveInterval(base.Interval)
	if err != nil {
		return nil, err
	}

	source, err := s.repo.BarRepo.Source(ctx, base.Symbols, interval, base.StartDate, base.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to build bar source: %w", err)
	}

	builder := backtestService{cfg: s.cfg, log: s.log, repo: s.repo, registry: s.registry}

	variants := make([]backtest.SweepVariant, 0, len(req.Variants))
	variantParams := make(map[string]strategy.Params, len(req.Variants))
	for _, v := range req.Variants {
		variantReq := base
		variantReq.Risk = mergeRiskOverride(base.Risk, v.Risk)
		variants = append(variants, backtest.SweepVariant{
			Name:   v.Name,
			Config: builder.buildRunConfig(variantReq),
		})
		variantParams[v.Name] = mergeParams(base.Params, v.Params)
	}

	factory := func(variant string) (backtest.Strategy, error) {
		return s.registry.Create(base.Strategy, s.log, variantParams[variant])
	}

	runner := backtest.NewSweepRunner(s.log, s.cfg.Sweep.MaxConcurrency)
	results := runner.Run(ctx, variants, factory, source, base.StartDate, base.EndDate)

	response := &dto.SweepResponse{
		Strategy: base.Strategy,
		Results:  make([]dto.SweepVariantResponse, 0, len(results)),
	}
	for _, r := range results {
		out := dto.SweepVariantResponse{Name: r.Name}
		if r.Err != nil {
			out.Error = r.Err.Error()
		} else if r.Result != nil {
			out.Metrics = r.Result.Metrics
		}
		response.Results = append(response.Results, out)
	}

	s.log.InfoContext(ctx, "Sweep completed",
		logger.StringField("strategy", base.Strategy),
		logger.IntField("variants", len(results)),
	)

	return response, nil
}

// mergeRiskOverride layers a variant override on top of the base override.
// Variant fields win; unset fields fall through to the base, then to the
// configured defaults.
func mergeRiskOverride(base, variant *dto.RiskOverride) *dto.RiskOverride {
	if base == nil {
		return variant
	}
	if variant == nil {
		return base
	}

	merged := *base
	if variant.MaxPortfolioDrawdown != nil {
		merged.MaxPortfolioDrawdown = variant.MaxPortfolioDrawdown
	}
	if variant.MaxPositionSize != nil {
		merged.MaxPositionSize = variant.MaxPositionSize
	}
	if variant.MinCashRatio != nil {
		merged.MinCashRatio = variant.MinCashRatio
	}
	if variant.MaxCashRatio != nil {
		merged.MaxCashRatio = variant.MaxCashRatio
	}
	if variant.MaxConcurrentPositions != nil {
		merged.MaxConcurrentPositions = variant.MaxConcurrentPositions
	}
	if variant.MaxPairwiseCorrelation != nil {
		merged.MaxPairwiseCorrelation = variant.MaxPairwiseCorrelation
	}
	if variant.CorrelationLookback != nil {
		merged.CorrelationLookback = variant.CorrelationLookback
	}
	if variant.StopLossPct != nil {
		merged.StopLossPct = variant.StopLossPct
	}
	if variant.EnableCircuitBreaker != nil {
		merged.EnableCircuitBreaker = variant.EnableCircuitBreaker
	}
	if variant.VolatilityTarget != nil {
		merged.VolatilityTarget = variant.VolatilityTarget
	}
	if variant.VolatilityLookback != nil {
		merged.VolatilityLookback = variant.VolatilityLookback
	}
	return &merged
}

func mergeParams(base, variant map[string]float64) strategy.Params {
	merged := make(strategy.Params, len(base)+len(variant))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range variant {
		merged[k] = v
	}
	return merged
}
