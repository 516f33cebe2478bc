package service

import (
	"context"
	"encoding/json"
	"fmt"

	"golang-backtest/config"
	"golang-backtest/internal/backtest"
	"golang-backtest/internal/dto"
	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/internal/strategy"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

const defaultBarInterval = "1d"

// supportedIntervals are the kline intervals the bar source can serve.
var supportedIntervals = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w"}

func resolveInterval(interval string) (string, error) {
	if interval == "" {
		return defaultBarInterval, nil
	}
	if !utils.ContainsString(supportedIntervals, interval) {
		return "", fmt.Errorf("unsupported interval %q, supported: %v", interval, supportedIntervals)
	}
	return interval, nil
}

// BacktestService runs backtests end to end: load bars, run the engine,
// persist the exported result.
type BacktestService interface {
	RunBacktest(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResponse, error)
	GetRun(ctx context.Context, id uint) (*model.BacktestRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]model.BacktestRun, error)
	RerunStored(ctx context.Context, run *model.BacktestRun) error
}

type backtestService struct {
	cfg      *config.Config
	log      *logger.Logger
	repo     *repository.Repository
	registry *strategy.Registry
}

func NewBacktestService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	registry *strategy.Registry,
) BacktestService {
	return &backtestService{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		registry: registry,
	}
}

// RunBacktest executes one backtest and persists the outcome. A
// persistence failure does not discard the result; the run is returned
// unsaved with a logged error.
func (s *backtestService) RunBacktest(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResponse, error) {
	runCfg := s.buildRunConfig(req)

	strat, err := s.registry.Create(req.Strategy, s.log, strategy.Params(req.Params))
	if err != nil {
		return nil, err
	}

	engine, err := backtest.NewEngine(runCfg, s.log)
	if err != nil {
		return nil, err
	}

	interval, err := resolveInterval(req.Interval)
	if err != nil {
		return nil, err
	}

	source, err := s.repo.BarRepo.Source(ctx, req.Symbols, interval, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to build bar source: %w", err)
	}

	result, err := engine.Run(ctx, strat, source, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Backtest completed",
		logger.StringField("strategy", req.Strategy),
		logger.IntField("symbols", len(req.Symbols)),
		logger.IntField("trades", result.Metrics.TradeCount),
		logger.Float64Field("total_return", result.Metrics.TotalReturn),
	)

	response := s.toResponse(req, runCfg, result)

	run, err := s.persistRun(ctx, req, interval, runCfg, result)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to persist backtest run", logger.ErrorField(err))
	} else if run != nil {
		response.ID = run.ID
	}

	return response, nil
}

func (s *backtestService) GetRun(ctx context.Context, id uint) (*model.BacktestRun, error) {
	return s.repo.BacktestRepo.GetByID(ctx, id)
}

func (s *backtestService) ListRuns(ctx context.Context, limit, offset int) ([]model.BacktestRun, error) {
	return s.repo.BacktestRepo.List(ctx, limit, offset)
}

// RerunStored replays a persisted run with its original parameters and
// refreshes the stored metrics. Used by the scheduler.
func (s *backtestService) RerunStored(ctx context.Context, run *model.BacktestRun) error {
	req, err := requestFromRun(run)
	if err != nil {
		return err
	}

	runCfg := s.buildRunConfig(req)

	strat, err := s.registry.Create(req.Strategy, s.log, strategy.Params(req.Params))
	if err != nil {
		return err
	}

	engine, err := backtest.NewEngine(runCfg, s.log)
	if err != nil {
		return err
	}

	source, err := s.repo.BarRepo.Source(ctx, req.Symbols, req.Interval, req.StartDate, req.EndDate)
	if err != nil {
		return fmt.Errorf("failed to build bar source: %w", err)
	}

	result, err := engine.Run(ctx, strat, source, req.StartDate, req.EndDate)
	if err != nil {
		return err
	}

	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	run.Metrics = metricsJSON
	run.FinalEquity = result.Metrics.FinalEquity
	run.Status = runStatus(result)
	return s.repo.BacktestRepo.Update(ctx, run)
}

// buildRunConfig merges configured defaults with request overrides.
// Validation happens in the engine constructor, before any tick executes.
func (s *backtestService) buildRunConfig(req dto.BacktestRequest) backtest.RunConfig {
	riskCfg := s.cfg.Risk
	settings := model.RiskSettings{
		MaxPortfolioDrawdown:   riskCfg.MaxPortfolioDrawdown,
		MaxPositionSize:        riskCfg.MaxPositionSize,
		MinCashRatio:           riskCfg.MinCashRatio,
		MaxCashRatio:           riskCfg.MaxCashRatio,
		MaxConcurrentPositions: riskCfg.MaxConcurrentPositions,
		MaxPairwiseCorrelation: riskCfg.MaxPairwiseCorrelation,
		CorrelationLookback:    riskCfg.CorrelationLookback,
		StopLossPct:            riskCfg.StopLossPct,
		EnableCircuitBreaker:   riskCfg.EnableCircuitBreaker,
		VolatilityTarget:       riskCfg.VolatilityTarget,
		VolatilityLookback:     riskCfg.VolatilityLookback,
	}
	applyRiskOverride(&settings, req.Risk)

	initialCash := s.cfg.Backtest.InitialCash
	if req.InitialCash != nil {
		initialCash = *req.InitialCash
	}

	return backtest.RunConfig{
		InitialCash: initialCash,
		Risk:        settings,
		Execution: backtest.ExecutionSettings{
			SlippagePct:    s.cfg.Backtest.SlippagePct,
			CommissionPct:  s.cfg.Backtest.CommissionPct,
			MaxVolumeShare: s.cfg.Backtest.MaxVolumeShare,
		},
		RiskFreeRate: s.cfg.Backtest.RiskFreeRate,
	}
}

func applyRiskOverride(settings *model.RiskSettings, override *dto.RiskOverride) {
	if override == nil {
		return
	}
	if override.MaxPortfolioDrawdown != nil {
		settings.MaxPortfolioDrawdown = *override.MaxPortfolioDrawdown
	}
	if override.MaxPositionSize != nil {
		settings.MaxPositionSize = *override.MaxPositionSize
	}
	if override.MinCashRatio != nil {
		settings.MinCashRatio = *override.MinCashRatio
	}
	if override.MaxCashRatio != nil {
		settings.MaxCashRatio = *override.MaxCashRatio
	}
	if override.MaxConcurrentPositions != nil {
		settings.MaxConcurrentPositions = *override.MaxConcurrentPositions
	}
	if override.MaxPairwiseCorrelation != nil {
		settings.MaxPairwiseCorrelation = *override.MaxPairwiseCorrelation
	}
	if override.CorrelationLookback != nil {
		settings.CorrelationLookback = *override.CorrelationLookback
	}
	if override.StopLossPct != nil {
		settings.StopLossPct = *override.StopLossPct
	}
	if override.EnableCircuitBreaker != nil {
		settings.EnableCircuitBreaker = *override.EnableCircuitBreaker
	}
	if override.VolatilityTarget != nil {
		settings.VolatilityTarget = *override.VolatilityTarget
	}
	if override.VolatilityLookback != nil {
		settings.VolatilityLookback = *override.VolatilityLookback
	}
}

func (s *backtestService) toResponse(req dto.BacktestRequest, runCfg backtest.RunConfig, result *backtest.BacktestResult) *dto.BacktestResponse {
	curve := make([]dto.EquityPoint, 0, len(result.Snapshots))
	for _, snap := range result.Snapshots {
		curve = append(curve, dto.EquityPoint{
			Timestamp: snap.Timestamp,
			Cash:      snap.Cash,
			Equity:    snap.Equity,
			Drawdown:  snap.Drawdown(),
		})
	}

	var rejections []model.RiskDecision
	for _, d := range result.Decisions {
		if d.Outcome == model.RiskOutcomeRejected {
			rejections = append(rejections, d)
		}
	}

	return &dto.BacktestResponse{
		Strategy:       req.Strategy,
		Symbols:        req.Symbols,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		InitialCash:    runCfg.InitialCash,
		Metrics:        result.Metrics,
		Trades:         result.Trades,
		EquityCurve:    curve,
		Rejections:     rejections,
		DroppedSymbols: result.DroppedSymbols,
		Interrupted:    result.Interrupted,
	}
}

func (s *backtestService) persistRun(ctx context.Context, req dto.BacktestRequest, interval string, runCfg backtest.RunConfig, result *backtest.BacktestResult) (*model.BacktestRun, error) {
	symbolsJSON, err := json.Marshal(req.Symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal symbols: %w", err)
	}
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	settingsJSON, err := json.Marshal(runCfg.Risk)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal risk settings: %w", err)
	}
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	trades := make([]model.BacktestTrade, 0, len(result.Trades))
	for _, t := range result.Trades {
		trades = append(trades, model.BacktestTrade{
			Symbol:      t.Symbol,
			Quantity:    t.Quantity,
			EntryTime:   t.EntryTime,
			EntryPrice:  t.EntryPrice,
			ExitTime:    t.ExitTime,
			ExitPrice:   t.ExitPrice,
			RealizedPnL: t.RealizedPnL,
			ExitReason:  t.ExitReason,
		})
	}

	run := &model.BacktestRun{
		Strategy:     req.Strategy,
		Symbols:      symbolsJSON,
		Interval:     interval,
		Params:       paramsJSON,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		InitialCash:  runCfg.InitialCash,
		FinalEquity:  result.Metrics.FinalEquity,
		RiskSettings: settingsJSON,
		Metrics:      metricsJSON,
		Status:       runStatus(result),
		Scheduled:    utils.ToPointer(req.Scheduled),
		Trades:       trades,
	}

	if err := s.repo.BacktestRepo.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func runStatus(result *backtest.BacktestResult) string {
	if result.Interrupted {
		return model.RunStatusPartial
	}
	return model.RunStatusCompleted
}

func requestFromRun(run *model.BacktestRun) (dto.BacktestRequest, error) {
	var symbols []string
	if err := json.Unmarshal(run.Symbols, &symbols); err != nil {
		return dto.BacktestRequest{}, fmt.Errorf("failed to unmarshal symbols for run %d: %w", run.ID, err)
	}

	var params map[string]float64
	if len(run.Params) > 0 {
		if err := json.Unmarshal(run.Params, &params); err != nil {
			return dto.BacktestRequest{}, fmt.Errorf("failed to unmarshal params for run %d: %w", run.ID, err)
		}
	}

	var override *dto.RiskOverride
	if len(run.RiskSettings) > 0 {
		var settings model.RiskSettings
		if err := json.Unmarshal(run.RiskSettings, &settings); err != nil {
			return dto.BacktestRequest{}, fmt.Errorf("failed to unmarshal risk settings for run %d: %w", run.ID, err)
		}
		override = overrideFromSettings(settings)
	}

	interval := run.Interval
	if interval == "" {
		interval = defaultBarInterval
	}

	return dto.BacktestRequest{
		Strategy:    run.Strategy,
		Symbols:     symbols,
		Interval:    interval,
		StartDate:   run.StartDate,
		EndDate:     run.EndDate,
		InitialCash: utils.ToPointer(run.InitialCash),
		Params:      params,
		Risk:        override,
		Scheduled:   run.Scheduled != nil && *run.Scheduled,
	}, nil
}

func overrideFromSettings(s model.RiskSettings) *dto.RiskOverride {
	return &dto.RiskOverride{
		MaxPortfolioDrawdown:   utils.ToPointer(s.MaxPortfolioDrawdown),
		MaxPositionSize:        utils.ToPointer(s.MaxPositionSize),
		MinCashRatio:           utils.ToPointer(s.MinCashRatio),
		MaxCashRatio:           utils.ToPointer(s.MaxCashRatio),
		MaxConcurrentPositions: utils.ToPointer(s.MaxConcurrentPositions),
		MaxPairwiseCorrelation: utils.ToPointer(s.MaxPairwiseCorrelation),
		CorrelationLookback:    utils.ToPointer(s.CorrelationLookback),
		StopLossPct:            utils.ToPointer(s.StopLossPct),
		EnableCircuitBreaker:   utils.ToPointer(s.EnableCircuitBreaker),
		VolatilityTarget:       utils.ToPointer(s.VolatilityTarget),
		VolatilityLookback:     utils.ToPointer(s.VolatilityLookback),
	}
}
