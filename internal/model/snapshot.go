package model

import "time"

// PortfolioSnapshot is one point on the equity curve. One snapshot is
// appended per simulation tick; the series is the backtest's ledger of
// record and is never rewritten.
type PortfolioSnapshot struct {
	Timestamp  time.Time           `json:"timestamp"`
	Cash       float64             `json:"cash"`
	Positions  map[string]Position `json:"positions"`
	Marks      map[string]float64  `json:"marks"`
	Equity     float64             `json:"equity"`
	PeakEquity float64             `json:"peak_equity"`
}

// Drawdown returns the current decline from peak equity as a fraction of
// the peak. Always >= 0.
func (s PortfolioSnapshot) Drawdown() float64 {
	if s.PeakEquity <= 0 {
		return 0
	}
	dd := (s.PeakEquity - s.Equity) / s.PeakEquity
	if dd < 0 {
		return 0
	}
	return dd
}

// CashRatio returns cash as a fraction of total equity.
func (s PortfolioSnapshot) CashRatio() float64 {
	if s.Equity == 0 {
		return 1
	}
	return s.Cash / s.Equity
}

// PositionValue returns the marked value of the holding in symbol, 0 when flat.
func (s PortfolioSnapshot) PositionValue(symbol string) float64 {
	pos, ok := s.Positions[symbol]
	if !ok {
		return 0
	}
	return pos.MarketValue(s.Marks[symbol])
}

// OpenPositionCount returns the number of non-zero positions.
func (s PortfolioSnapshot) OpenPositionCount() int {
	return len(s.Positions)
}
