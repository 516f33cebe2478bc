package backtest

import (
	"math"

	"golang-backtest/internal/model"
)

// ExecutionSettings configures the fill model.
type ExecutionSettings struct {
	// SlippagePct is the directional price impact on market orders:
	// buys pay up, sells receive less.
	SlippagePct float64
	// CommissionPct is charged on the notional value of every fill.
	CommissionPct float64
	// MaxVolumeShare caps a limit order's fill quantity at this share of
	// the bar's volume. Zero disables the cap (limit orders fill fully).
	MaxVolumeShare float64
}

// OrderSimulator converts accepted orders into fills against a single bar.
// Market orders fill fully at the bar open adjusted for slippage. Limit
// orders fill at the limit price when the bar's [low, high] range crosses
// it, possibly partially; otherwise the order lapses with no carry-over.
type OrderSimulator struct {
	settings ExecutionSettings
}

func NewOrderSimulator(settings ExecutionSettings) *OrderSimulator {
	return &OrderSimulator{settings: settings}
}

// Execute returns the fill for order against bar, or nil when the order
// cannot fill on this bar. Execute has no side effects; applying the fill
// is the ledger's job.
func (s *OrderSimulator) Execute(order model.Order, bar model.Bar) *model.Fill {
	switch order.Type {
	case model.OrderTypeMarket:
		return s.executeMarket(order, bar)
	case model.OrderTypeLimit:
		return s.executeLimit(order, bar)
	default:
		return nil
	}
}

func (s *OrderSimulator) executeMarket(order model.Order, bar model.Bar) *model.Fill {
	var price float64
	if order.Side == model.OrderSideBuy {
		price = bar.Open * (1 + s.settings.SlippagePct)
	} else {
		price = bar.Open * (1 - s.settings.SlippagePct)
	}

	slippage := math.Abs(price-bar.Open) * float64(order.Quantity)
	notional := price * float64(order.Quantity)

	return &model.Fill{
		Order:      order,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		Commission: notional * s.settings.CommissionPct,
		Slippage:   slippage,
		Timestamp:  bar.Timestamp,
	}
}

func (s *OrderSimulator) executeLimit(order model.Order, bar model.Bar) *model.Fill {
	// The order lapses unless the bar's traded range crosses the limit
	// price. Lapsed orders are not carried to future bars; strategies
	// must resubmit.
	if order.LimitPrice < bar.Low || order.LimitPrice > bar.High {
		return nil
	}

	quantity := order.Quantity
	if s.settings.MaxVolumeShare > 0 && bar.Volume > 0 {
		maxQty := int64(bar.Volume * s.settings.MaxVolumeShare)
		if maxQty <= 0 {
			return nil
		}
		if quantity > maxQty {
			quantity = maxQty
		}
	}

	// Fill at the limit price itself; no positive slippage is assumed.
	notional := order.LimitPrice * float64(quantity)

	return &model.Fill{
		Order:      order,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   quantity,
		Price:      order.LimitPrice,
		Commission: notional * s.settings.CommissionPct,
		Slippage:   0,
		Timestamp:  bar.Timestamp,
	}
}
