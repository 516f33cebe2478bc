package strategy

import (
	"context"
	"fmt"
	"time"

	"golang-backtest/internal/backtest"
	"golang-backtest/internal/model"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

const StrategySMACross = "sma_cross"

const (
	defaultFastPeriod = 10
	defaultSlowPeriod = 30
	defaultOrderQty   = 100
)

// smaCross goes long when the fast moving average crosses above the slow
// one and exits on the cross back down. Holdings are tracked from fills,
// never from engine internals.
type smaCross struct {
	log      *logger.Logger
	fast     int
	slow     int
	quantity int64
	held     map[string]int64
}

// NewSMACross builds an SMA crossover strategy.
// Params: fast_period, slow_period, order_quantity.
func NewSMACross(log *logger.Logger, params Params) (backtest.Strategy, error) {
	s := &smaCross{
		log:      log,
		fast:     params.intOr("fast_period", defaultFastPeriod),
		slow:     params.intOr("slow_period", defaultSlowPeriod),
		quantity: params.int64Or("order_quantity", defaultOrderQty),
		held:     make(map[string]int64),
	}
	if s.fast < 1 || s.slow <= s.fast {
		return nil, fmt.Errorf("sma_cross requires 1 <= fast_period < slow_period, got fast=%d slow=%d", s.fast, s.slow)
	}
	if s.quantity <= 0 {
		return nil, fmt.Errorf("sma_cross requires a positive order_quantity, got %d", s.quantity)
	}
	return s, nil
}

func (s *smaCross) Initialize(ctx context.Context) error {
	s.log.DebugContext(ctx, "Initializing SMA cross strategy",
		logger.IntField("fast_period", s.fast),
		logger.IntField("slow_period", s.slow),
	)
	return nil
}

func (s *smaCross) OnData(ctx context.Context, ts time.Time, window *backtest.Window) ([]model.Order, error) {
	var orders []model.Order
	satisfied := false

	for _, symbol := range window.Symbols() {
		// One extra bar so the previous tick's averages are available
		// for cross detection.
		closes, err := window.Closes(symbol, s.slow+1)
		if err != nil {
			continue
		}
		satisfied = true

		prevFast := utils.Mean(closes[len(closes)-1-s.fast : len(closes)-1])
		prevSlow := utils.Mean(closes[:len(closes)-1])
		currFast := utils.Mean(closes[len(closes)-s.fast:])
		currSlow := utils.Mean(closes[1:])

		holding := s.held[symbol] > 0
		crossedUp := prevFast <= prevSlow && currFast > currSlow
		crossedDown := prevFast >= prevSlow && currFast < currSlow

		switch {
		case crossedUp && !holding:
			orders = append(orders, model.Order{
				Symbol:   symbol,
				Side:     model.OrderSideBuy,
				Quantity: s.quantity,
				Type:     model.OrderTypeMarket,
			})
		case crossedDown && holding:
			orders = append(orders, model.Order{
				Symbol:   symbol,
				Side:     model.OrderSideSell,
				Quantity: s.held[symbol],
				Type:     model.OrderTypeMarket,
			})
		}
	}

	if !satisfied {
		return nil, backtest.ErrInsufficientData
	}
	return orders, nil
}

func (s *smaCross) OnFill(ctx context.Context, fill model.Fill) {
	if fill.Side == model.OrderSideBuy {
		s.held[fill.Symbol] += fill.Quantity
	} else {
		s.held[fill.Symbol] -= fill.Quantity
	}
	if s.held[fill.Symbol] <= 0 {
		delete(s.held, fill.Symbol)
	}
}

func (s *smaCross) Finalize(ctx context.Context) {
	s.log.DebugContext(ctx, "SMA cross strategy finished",
		logger.IntField("open_symbols", len(s.held)),
	)
}
