package model

import (
	"fmt"
	"time"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Order is a strategy's request to trade. It is immutable once submitted to
// the risk gate; resizing produces an adjusted quantity on the RiskDecision,
// never a mutation of the original order.
type Order struct {
	Symbol      string    `json:"symbol"`
	Side        OrderSide `json:"side"`
	Quantity    int64     `json:"quantity"`
	Type        OrderType `json:"type"`
	LimitPrice  float64   `json:"limit_price,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (o Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order has empty symbol")
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order quantity must be positive, got %d", o.Quantity)
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return fmt.Errorf("unknown order side %q", o.Side)
	}
	switch o.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if o.LimitPrice <= 0 {
			return fmt.Errorf("limit order requires a positive limit price")
		}
	default:
		return fmt.Errorf("unknown order type %q", o.Type)
	}
	return nil
}

// SignedQuantity returns the order quantity signed by direction.
func (o Order) SignedQuantity() int64 {
	if o.Side == OrderSideSell {
		return -o.Quantity
	}
	return o.Quantity
}

type RiskOutcome string

const (
	RiskOutcomeApproved RiskOutcome = "approved"
	RiskOutcomeRejected RiskOutcome = "rejected"
	RiskOutcomeResized  RiskOutcome = "resized"
)

// Reason codes carried on every risk decision for auditability.
const (
	ReasonApproved              = "APPROVED"
	ReasonCircuitBreakerTripped = "CIRCUIT_BREAKER_TRIPPED"
	ReasonPositionSizeResized   = "POSITION_SIZE_RESIZED"
	ReasonPositionSizeCap       = "POSITION_SIZE_CAP"
	ReasonCashRatioBounds       = "CASH_RATIO_OUT_OF_BOUNDS"
	ReasonCorrelationLimit      = "CORRELATION_LIMIT_EXCEEDED"
	ReasonMaxPositions          = "MAX_CONCURRENT_POSITIONS"
	ReasonVolatilityResized     = "VOLATILITY_TARGET_RESIZED"
	ReasonForcedLiquidation     = "CIRCUIT_BREAKER_LIQUIDATION"
	ReasonStopLoss              = "STOP_LOSS_HIT"
	ReasonNoBar                 = "NO_BAR_FOR_SYMBOL"
	ReasonInvalidOrder          = "INVALID_ORDER"
	ReasonOrderLapsed           = "ORDER_LAPSED"
)

// RiskDecision is the risk gate's verdict for a single order.
type RiskDecision struct {
	Order            Order       `json:"order"`
	Outcome          RiskOutcome `json:"outcome"`
	Reason           string      `json:"reason"`
	AdjustedQuantity int64       `json:"adjusted_quantity"`
}

// Approved reports whether any quantity may proceed to execution.
func (d RiskDecision) Approved() bool {
	return d.Outcome == RiskOutcomeApproved || d.Outcome == RiskOutcomeResized
}

// Fill is the realized execution of an accepted order.
type Fill struct {
	Order      Order     `json:"order"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	Slippage   float64   `json:"slippage"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason,omitempty"`
}

// Notional is the gross traded value of the fill.
func (f Fill) Notional() float64 {
	return f.Price * float64(f.Quantity)
}
