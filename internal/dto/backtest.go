package dto

import (
	"time"

	"golang-backtest/internal/backtest"
	"golang-backtest/internal/model"
)

// RiskOverride carries optional per-request overrides of the configured
// risk policy defaults. Nil fields keep the default.
type RiskOverride struct {
	MaxPortfolioDrawdown   *float64 `json:"max_portfolio_drawdown,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxPositionSize        *float64 `json:"max_position_size,omitempty" validate:"omitempty,gt=0,lte=1"`
	MinCashRatio           *float64 `json:"min_cash_ratio,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxCashRatio           *float64 `json:"max_cash_ratio,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxConcurrentPositions *int     `json:"max_concurrent_positions,omitempty" validate:"omitempty,gt=0"`
	MaxPairwiseCorrelation *float64 `json:"max_pairwise_correlation,omitempty" validate:"omitempty,gte=-1,lte=1"`
	CorrelationLookback    *int     `json:"correlation_lookback,omitempty" validate:"omitempty,gte=2"`
	StopLossPct            *float64 `json:"stop_loss_pct,omitempty" validate:"omitempty,gte=0,lt=1"`
	EnableCircuitBreaker   *bool    `json:"enable_circuit_breaker,omitempty"`
	VolatilityTarget       *float64 `json:"volatility_target,omitempty" validate:"omitempty,gte=0"`
	VolatilityLookback     *int     `json:"volatility_lookback,omitempty" validate:"omitempty,gte=2"`
}

// BacktestRequest defines the parameters for one backtest run.
type BacktestRequest struct {
	Strategy    string             `json:"strategy" validate:"required"`
	Symbols     []string           `json:"symbols" validate:"required,min=1,dive,required"`
	Interval    string             `json:"interval"`
	StartDate   time.Time          `json:"start_date" validate:"required"`
	EndDate     time.Time          `json:"end_date" validate:"required,gtfield=StartDate"`
	InitialCash *float64           `json:"initial_cash,omitempty" validate:"omitempty,gt=0"`
	Params      map[string]float64 `json:"params,omitempty"`
	Risk        *RiskOverride      `json:"risk,omitempty"`
	Scheduled   bool               `json:"scheduled"`
}

// EquityPoint is one point of the exported equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Cash      float64   `json:"cash"`
	Equity    float64   `json:"equity"`
	Drawdown  float64   `json:"drawdown"`
}

// BacktestResponse summarizes a completed run for API consumers.
type BacktestResponse struct {
	ID             uint                 `json:"id,omitempty"`
	Strategy       string               `json:"strategy"`
	Symbols        []string             `json:"symbols"`
	StartDate      time.Time            `json:"start_date"`
	EndDate        time.Time            `json:"end_date"`
	InitialCash    float64              `json:"initial_cash"`
	Metrics        backtest.Metrics     `json:"metrics"`
	Trades         []model.TradeLog     `json:"trades"`
	EquityCurve    []EquityPoint        `json:"equity_curve"`
	Rejections     []model.RiskDecision `json:"rejections,omitempty"`
	DroppedSymbols map[string]string    `json:"dropped_symbols,omitempty"`
	Interrupted    bool                 `json:"interrupted"`
}

// SweepVariantRequest is one grid point of a parameter sweep.
type SweepVariantRequest struct {
	Name   string             `json:"name" validate:"required"`
	Params map[string]float64 `json:"params,omitempty"`
	Risk   *RiskOverride      `json:"risk,omitempty"`
}

// SweepRequest runs the same strategy and data through several risk or
// strategy parameter variants.
type SweepRequest struct {
	Base     BacktestRequest       `json:"base" validate:"required"`
	Variants []SweepVariantRequest `json:"variants" validate:"required,min=1,dive"`
}

// SweepVariantResponse is the outcome of one sweep variant.
type SweepVariantResponse struct {
	Name    string           `json:"name"`
	Metrics backtest.Metrics `json:"metrics"`
	Error   string           `json:"error,omitempty"`
}

// SweepResponse aggregates the outcomes of a sweep in grid order.
type SweepResponse struct {
	Strategy string                 `json:"strategy"`
	Results  []SweepVariantResponse `json:"results"`
}
