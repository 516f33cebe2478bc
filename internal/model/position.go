package model

import "time"

// Position is the net holding for one symbol. Quantity is signed: positive
// for long, negative for short. AvgCost tracks the weighted-average cost
// basis of the open quantity; realized P&L on reductions is booked against
// this basis.
type Position struct {
	Symbol   string    `json:"symbol"`
	Quantity int64     `json:"quantity"`
	AvgCost  float64   `json:"avg_cost"`
	OpenedAt time.Time `json:"opened_at"`
}

// MarketValue returns the position value at the given mark price.
func (p Position) MarketValue(markPrice float64) float64 {
	return float64(p.Quantity) * markPrice
}

// IsLong reports whether the position quantity is positive.
func (p Position) IsLong() bool {
	return p.Quantity > 0
}
