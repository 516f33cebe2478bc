package model

import "time"

// TradeLog records one realized round trip (or partial reduction) of a
// position: entry basis, exit price and the P&L booked at exit.
type TradeLog struct {
	Symbol      string    `json:"symbol"`
	Side        OrderSide `json:"side"`
	Quantity    int64     `json:"quantity"`
	EntryTime   time.Time `json:"entry_time"`
	EntryPrice  float64   `json:"entry_price"`
	ExitTime    time.Time `json:"exit_time"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	ExitReason  string    `json:"exit_reason,omitempty"`
}

// HoldingPeriod returns the duration between entry and exit.
func (t TradeLog) HoldingPeriod() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
