package model

import (
	"fmt"
	"time"

	"golang-backtest/pkg/utils"
)

// Bar is one OHLCV observation for a symbol at a timestamp.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate rejects bars with non-finite or internally inconsistent prices.
func (b Bar) Validate() error {
	for name, v := range map[string]float64{
		"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close,
	} {
		if !utils.IsFinite(v) || v <= 0 {
			return fmt.Errorf("bar %s@%s has invalid %s price %v", b.Symbol, b.Timestamp.Format(time.RFC3339), name, v)
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("bar %s@%s has high %.4f below low %.4f", b.Symbol, b.Timestamp.Format(time.RFC3339), b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("bar %s@%s has open/close outside [low, high] range", b.Symbol, b.Timestamp.Format(time.RFC3339))
	}
	if b.Volume < 0 || !utils.IsFinite(b.Volume) {
		return fmt.Errorf("bar %s@%s has invalid volume %v", b.Symbol, b.Timestamp.Format(time.RFC3339), b.Volume)
	}
	return nil
}
