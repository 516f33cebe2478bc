package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"golang-backtest/internal/model"
)

func snapshotsFromEquity(start time.Time, step time.Duration, equities ...float64) []model.PortfolioSnapshot {
	out := make([]model.PortfolioSnapshot, 0, len(equities))
	for i, e := range equities {
		out = append(out, model.PortfolioSnapshot{
			Timestamp: start.Add(time.Duration(i) * step),
			Equity:    e,
		})
	}
	return out
}

func TestResultsAggregator_ReturnsAndDrawdown(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	snapshots := snapshotsFromEquity(start, 24*time.Hour, 100_000, 110_000, 99_000, 104_500)

	m := ResultsAggregator{}.Summarize(snapshots, nil)

	assert.InDelta(t, 100_000, m.InitialEquity, 1e-9)
	assert.InDelta(t, 104_500, m.FinalEquity, 1e-9)
	assert.InDelta(t, 0.045, m.TotalReturn, 1e-9)
	assert.InDelta(t, 11_000.0/110_000, m.MaxDrawdown, 1e-9, "largest peak-to-trough decline")
	assert.Greater(t, m.AnnualizedReturn, m.TotalReturn, "three days of gains annualize upward")
}

func TestResultsAggregator_TradeStats(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	snapshots := snapshotsFromEquity(start, 24*time.Hour, 100_000, 100_025)

	trades := []model.TradeLog{
		{Symbol: "AAPL", RealizedPnL: 10},
		{Symbol: "MSFT", RealizedPnL: -5},
		{Symbol: "GOOG", RealizedPnL: 20},
	}

	m := ResultsAggregator{}.Summarize(snapshots, trades)

	assert.Equal(t, 3, m.TradeCount)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-9)
	assert.InDelta(t, 6.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 15.0, m.AvgWin, 1e-9)
	assert.InDelta(t, -5.0, m.AvgLoss, 1e-9)
}

func TestResultsAggregator_SharpeSignTracksPerformance(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	rising := snapshotsFromEquity(start, 24*time.Hour, 100, 101, 103, 102, 105, 107)
	falling := snapshotsFromEquity(start, 24*time.Hour, 107, 106, 104, 103, 101, 100)

	up := ResultsAggregator{}.Summarize(rising, nil)
	down := ResultsAggregator{}.Summarize(falling, nil)

	assert.Positive(t, up.SharpeRatio)
	assert.Negative(t, down.SharpeRatio)
	assert.Positive(t, up.SortinoRatio)
}

func TestResultsAggregator_ZeroVarianceLeavesRatiosZero(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	flat := snapshotsFromEquity(start, 24*time.Hour, 100, 100, 100, 100)

	m := ResultsAggregator{}.Summarize(flat, nil)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.SortinoRatio)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.TotalReturn)
}

func TestResultsAggregator_EmptyInputs(t *testing.T) {
	m := ResultsAggregator{}.Summarize(nil, nil)
	assert.Zero(t, m.TradeCount)
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.FinalEquity)
}

func TestMaxDrawdown_RecoveryDoesNotShrinkDrawdown(t *testing.T) {
	dd := maxDrawdown([]float64{100, 80, 120, 90})
	// Worst decline is 120 -> 90, not the earlier 100 -> 80.
	assert.InDelta(t, 0.25, dd, 1e-9)
}
