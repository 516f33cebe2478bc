package backtest

import (
	"math"
	"time"

	"golang-backtest/internal/model"
	"golang-backtest/pkg/utils"
)

// Metrics are the aggregate performance and risk figures derived from the
// immutable run history. Purely a read-only view; computing metrics never
// mutates ledger state.
type Metrics struct {
	InitialEquity    float64 `json:"initial_equity"`
	FinalEquity      float64 `json:"final_equity"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	TradeCount       int     `json:"trade_count"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
}

// ResultsAggregator computes metrics from the snapshot series and the
// realized trade log.
type ResultsAggregator struct {
	// RiskFreeRate is annualized; it is de-annualized per tick using the
	// derived tick frequency.
	RiskFreeRate float64
}

// Summarize derives the full metric set. Win rate and profit factor come
// from closed-position realized P&L, not open marks.
func (a ResultsAggregator) Summarize(snapshots []model.PortfolioSnapshot, trades []model.TradeLog) Metrics {
	m := Metrics{}
	if len(snapshots) == 0 {
		return m
	}

	m.InitialEquity = snapshots[0].Equity
	m.FinalEquity = snapshots[len(snapshots)-1].Equity
	if m.InitialEquity > 0 {
		m.TotalReturn = m.FinalEquity/m.InitialEquity - 1
	}

	ticksPerYear := utils.TicksPerYear(tickInterval(snapshots))

	equity := make([]float64, len(snapshots))
	for i, s := range snapshots {
		equity[i] = s.Equity
	}
	returns := utils.SimpleReturns(equity)

	if n := len(returns); n > 0 && m.InitialEquity > 0 && m.FinalEquity > 0 {
		m.AnnualizedReturn = math.Pow(m.FinalEquity/m.InitialEquity, ticksPerYear/float64(n)) - 1
	}

	rfPerTick := a.RiskFreeRate / ticksPerYear
	excess := utils.Mean(returns) - rfPerTick

	if sd := utils.StdDev(returns); sd > 0 {
		m.SharpeRatio = excess / sd * math.Sqrt(ticksPerYear)
	}
	if dd := utils.DownsideDeviation(returns, rfPerTick); dd > 0 {
		m.SortinoRatio = excess / dd * math.Sqrt(ticksPerYear)
	}

	m.MaxDrawdown = maxDrawdown(equity)

	a.summarizeTrades(&m, trades)
	return m
}

func (a ResultsAggregator) summarizeTrades(m *Metrics, trades []model.TradeLog) {
	var totalWin, totalLoss float64
	for _, t := range trades {
		m.TradeCount++
		if t.RealizedPnL > 0 {
			m.WinningTrades++
			totalWin += t.RealizedPnL
		} else {
			m.LosingTrades++
			totalLoss += t.RealizedPnL
		}
	}

	if m.TradeCount > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TradeCount)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = totalWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = totalLoss / float64(m.LosingTrades)
	}
	if totalLoss != 0 {
		m.ProfitFactor = totalWin / -totalLoss
	}
}

// maxDrawdown returns the largest peak-to-trough decline over the equity
// series as a fraction of the peak.
func maxDrawdown(equity []float64) float64 {
	var peak, maxDD float64
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// tickInterval infers the spacing of the equity curve from the first two
// distinct snapshot timestamps.
func tickInterval(snapshots []model.PortfolioSnapshot) time.Duration {
	for i := 1; i < len(snapshots); i++ {
		if d := snapshots[i].Timestamp.Sub(snapshots[i-1].Timestamp); d > 0 {
			return d
		}
	}
	return 0
}
