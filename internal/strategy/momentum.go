package strategy

import (
	"context"
	"fmt"
	"time"

	"golang-backtest/internal/backtest"
	"golang-backtest/internal/model"
	"golang-backtest/pkg/logger"
)

const StrategyMomentum = "momentum"

const (
	defaultMomentumLookback = 20
	defaultEntryThreshold   = 0.05
	defaultExitThreshold    = -0.02
)

// momentum buys symbols whose trailing return over the lookback exceeds
// the entry threshold and exits when it falls below the exit threshold.
type momentum struct {
	log            *logger.Logger
	lookback       int
	entryThreshold float64
	exitThreshold  float64
	quantity       int64
	held           map[string]int64
}

// NewMomentum builds a trailing-return momentum strategy.
// Params: lookback, entry_threshold, exit_threshold, order_quantity.
func NewMomentum(log *logger.Logger, params Params) (backtest.Strategy, error) {
	m := &momentum{
		log:            log,
		lookback:       params.intOr("lookback", defaultMomentumLookback),
		entryThreshold: params.floatOr("entry_threshold", defaultEntryThreshold),
		exitThreshold:  params.floatOr("exit_threshold", defaultExitThreshold),
		quantity:       params.int64Or("order_quantity", defaultOrderQty),
		held:           make(map[string]int64),
	}
	if m.lookback < 2 {
		return nil, fmt.Errorf("momentum requires lookback >= 2, got %d", m.lookback)
	}
	if m.exitThreshold >= m.entryThreshold {
		return nil, fmt.Errorf("momentum requires exit_threshold < entry_threshold, got exit=%v entry=%v", m.exitThreshold, m.entryThreshold)
	}
	if m.quantity <= 0 {
		return nil, fmt.Errorf("momentum requires a positive order_quantity, got %d", m.quantity)
	}
	return m, nil
}

func (m *momentum) Initialize(ctx context.Context) error {
	m.log.DebugContext(ctx, "Initializing momentum strategy",
		logger.IntField("lookback", m.lookback),
		logger.Float64Field("entry_threshold", m.entryThreshold),
	)
	return nil
}

func (m *momentum) OnData(ctx context.Context, ts time.Time, window *backtest.Window) ([]model.Order, error) {
	var orders []model.Order
	satisfied := false

	for _, symbol := range window.Symbols() {
		closes, err := window.Closes(symbol, m.lookback)
		if err != nil {
			continue
		}
		satisfied = true

		first, last := closes[0], closes[len(closes)-1]
		if first == 0 {
			continue
		}
		trailing := last/first - 1
		holding := m.held[symbol] > 0

		switch {
		case trailing >= m.entryThreshold && !holding:
			orders = append(orders, model.Order{
				Symbol:   symbol,
				Side:     model.OrderSideBuy,
				Quantity: m.quantity,
				Type:     model.OrderTypeMarket,
			})
		case trailing <= m.exitThreshold && holding:
			orders = append(orders, model.Order{
				Symbol:   symbol,
				Side:     model.OrderSideSell,
				Quantity: m.held[symbol],
				Type:     model.OrderTypeMarket,
			})
		}
	}

	if !satisfied {
		return nil, backtest.ErrInsufficientData
	}
	return orders, nil
}

func (m *momentum) OnFill(ctx context.Context, fill model.Fill) {
	if fill.Side == model.OrderSideBuy {
		m.held[fill.Symbol] += fill.Quantity
	} else {
		m.held[fill.Symbol] -= fill.Quantity
	}
	if m.held[fill.Symbol] <= 0 {
		delete(m.held, fill.Symbol)
	}
}

func (m *momentum) Finalize(ctx context.Context) {
	m.log.DebugContext(ctx, "Momentum strategy finished",
		logger.IntField("open_symbols", len(m.held)),
	)
}
