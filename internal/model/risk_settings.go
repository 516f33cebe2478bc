package model

import "fmt"

// RiskSettings is the portfolio risk policy for one backtest run. Loaded
// once per run and immutable for the run's duration; each run gets its own
// copy so parallel sweeps stay isolated.
type RiskSettings struct {
	MaxPortfolioDrawdown   float64 `json:"max_portfolio_drawdown"`
	MaxPositionSize        float64 `json:"max_position_size"`
	MinCashRatio           float64 `json:"min_cash_ratio"`
	MaxCashRatio           float64 `json:"max_cash_ratio"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
	MaxPairwiseCorrelation float64 `json:"max_pairwise_correlation"`
	CorrelationLookback    int     `json:"correlation_lookback"`
	StopLossPct            float64 `json:"stop_loss_pct"`
	EnableCircuitBreaker   bool    `json:"enable_circuit_breaker"`
	VolatilityTarget       float64 `json:"volatility_target"`
	VolatilityLookback     int     `json:"volatility_lookback"`
}

// Validate checks internal consistency of the settings. A validation
// failure is fatal at run start, before any simulation step executes.
func (s RiskSettings) Validate() error {
	if s.MaxPortfolioDrawdown < 0 || s.MaxPortfolioDrawdown > 1 {
		return fmt.Errorf("max_portfolio_drawdown must be within [0, 1], got %v", s.MaxPortfolioDrawdown)
	}
	if s.MaxPositionSize <= 0 || s.MaxPositionSize > 1 {
		return fmt.Errorf("max_position_size must be within (0, 1], got %v", s.MaxPositionSize)
	}
	if s.MinCashRatio < 0 || s.MinCashRatio > 1 {
		return fmt.Errorf("min_cash_ratio must be within [0, 1], got %v", s.MinCashRatio)
	}
	if s.MaxCashRatio < 0 || s.MaxCashRatio > 1 {
		return fmt.Errorf("max_cash_ratio must be within [0, 1], got %v", s.MaxCashRatio)
	}
	if s.MinCashRatio > s.MaxCashRatio {
		return fmt.Errorf("min_cash_ratio %v exceeds max_cash_ratio %v", s.MinCashRatio, s.MaxCashRatio)
	}
	if s.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("max_concurrent_positions must be positive, got %d", s.MaxConcurrentPositions)
	}
	if s.MaxPairwiseCorrelation < -1 || s.MaxPairwiseCorrelation > 1 {
		return fmt.Errorf("max_pairwise_correlation must be within [-1, 1], got %v", s.MaxPairwiseCorrelation)
	}
	if s.CorrelationLookback < 2 {
		return fmt.Errorf("correlation_lookback must be at least 2, got %d", s.CorrelationLookback)
	}
	if s.StopLossPct < 0 || s.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be within [0, 1), got %v", s.StopLossPct)
	}
	if s.VolatilityTarget < 0 {
		return fmt.Errorf("volatility_target must not be negative, got %v", s.VolatilityTarget)
	}
	if s.VolatilityTarget > 0 && s.VolatilityLookback < 2 {
		return fmt.Errorf("volatility_lookback must be at least 2 when volatility targeting is enabled, got %d", s.VolatilityLookback)
	}
	return nil
}
