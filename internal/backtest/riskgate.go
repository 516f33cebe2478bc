package backtest

import (
	"math"
	"sort"
	"time"

	"golang-backtest/internal/model"
	"golang-backtest/pkg/utils"
)

// sizeEpsilon absorbs float noise when comparing position values against
// the cap so that "exactly at the cap" is allowed.
const sizeEpsilon = 1e-9

// RiskGate validates proposed orders against the run's risk policy. It is
// a pure function of (order, snapshot, settings) except for the circuit
// breaker flag, which is explicit per-run state: once tripped it stays
// tripped for the remainder of the run unless Reset is called.
//
// Checks run sequentially and short-circuit on the first failure:
// circuit breaker, volatility sizing (pre-scale), position size cap
// (resize, not reject), cash bounds, correlation filter, position count.
type RiskGate struct {
	settings model.RiskSettings
	tripped  bool
}

func NewRiskGate(settings model.RiskSettings) *RiskGate {
	return &RiskGate{settings: settings}
}

// Tripped reports whether the circuit breaker has fired during this run.
func (g *RiskGate) Tripped() bool {
	return g.tripped
}

// Reset re-arms the circuit breaker. Intended for reuse between runs,
// never within one.
func (g *RiskGate) Reset() {
	g.tripped = false
}

// MaybeTrip latches the circuit breaker when drawdown breaches the
// configured maximum. Returns true only on the ARMED -> TRIPPED
// transition.
func (g *RiskGate) MaybeTrip(snapshot model.PortfolioSnapshot) bool {
	if !g.settings.EnableCircuitBreaker || g.tripped {
		return false
	}
	if snapshot.Drawdown() >= g.settings.MaxPortfolioDrawdown {
		g.tripped = true
		return true
	}
	return false
}

// Evaluate returns the risk decision for one order against the current
// portfolio state. The window provides the price history needed for the
// volatility and correlation checks; it is never mutated.
func (g *RiskGate) Evaluate(order model.Order, snapshot model.PortfolioSnapshot, window *Window) model.RiskDecision {
	decision := model.RiskDecision{
		Order:            order,
		Outcome:          model.RiskOutcomeApproved,
		Reason:           model.ReasonApproved,
		AdjustedQuantity: order.Quantity,
	}

	if err := order.Validate(); err != nil {
		return reject(decision, model.ReasonInvalidOrder)
	}

	pos, hasPosition := snapshot.Positions[order.Symbol]
	increase := isIncrease(pos.Quantity, order.SignedQuantity())
	newEntry := !hasPosition

	// Check 1: circuit breaker. Tripping rejects all new risk-taking;
	// exits remain allowed so the portfolio can be wound down.
	g.MaybeTrip(snapshot)
	if g.tripped && increase {
		return reject(decision, model.ReasonCircuitBreakerTripped)
	}

	refPrice := g.referencePrice(order, snapshot, window)
	if refPrice <= 0 {
		return reject(decision, model.ReasonNoBar)
	}

	quantity := order.Quantity

	// Volatility targeting: sizing, not rejection. Applied before the
	// position-size and cash checks.
	if increase && g.settings.VolatilityTarget > 0 {
		scaled, ok := g.volatilityScaledQuantity(order.Symbol, quantity, refPrice, snapshot.Equity, window)
		if ok && scaled < quantity {
			if scaled <= 0 {
				return reject(decision, model.ReasonVolatilityResized)
			}
			quantity = scaled
			decision.Outcome = model.RiskOutcomeResized
			decision.Reason = model.ReasonVolatilityResized
		}
	}

	// Check 2: position size cap. Policy prefers partial execution over
	// rejection here, so the quantity is resized down to the cap.
	if increase {
		resized, ok := g.capQuantity(pos.Quantity, order.Side, quantity, refPrice, snapshot.Equity)
		if !ok {
			return reject(decision, model.ReasonPositionSizeCap)
		}
		if resized < quantity {
			quantity = resized
			decision.Outcome = model.RiskOutcomeResized
			decision.Reason = model.ReasonPositionSizeResized
		}
	}

	// Check 3: cash bounds.
	if !g.cashWithinBounds(order.Side, quantity, refPrice, snapshot) {
		return reject(decision, model.ReasonCashRatioBounds)
	}

	// Check 4: correlation filter, new entries only.
	if newEntry && !g.correlationAllowed(order.Symbol, snapshot, window) {
		return reject(decision, model.ReasonCorrelationLimit)
	}

	// Check 5: position count cap, new entries only.
	if newEntry && snapshot.OpenPositionCount() >= g.settings.MaxConcurrentPositions {
		return reject(decision, model.ReasonMaxPositions)
	}

	decision.AdjustedQuantity = quantity
	return decision
}

// ForcedExits returns market orders that flatten every open position.
// Called by the engine within the same tick the breaker trips.
func (g *RiskGate) ForcedExits(snapshot model.PortfolioSnapshot, ts time.Time) []model.Order {
	return closeAllOrders(snapshot, ts)
}

// StopLossExits returns market close orders for positions whose mark has
// breached the per-position stop-loss distance from average cost.
func (g *RiskGate) StopLossExits(snapshot model.PortfolioSnapshot, ts time.Time) []model.Order {
	if g.settings.StopLossPct <= 0 {
		return nil
	}

	var orders []model.Order
	for _, symbol := range sortedSymbols(snapshot.Positions) {
		pos := snapshot.Positions[symbol]
		mark, ok := snapshot.Marks[symbol]
		if !ok || mark <= 0 {
			continue
		}

		breached := false
		if pos.Quantity > 0 {
			breached = mark <= pos.AvgCost*(1-g.settings.StopLossPct)
		} else {
			breached = mark >= pos.AvgCost*(1+g.settings.StopLossPct)
		}
		if breached {
			orders = append(orders, closeOrder(pos, ts))
		}
	}
	return orders
}

func (g *RiskGate) referencePrice(order model.Order, snapshot model.PortfolioSnapshot, window *Window) float64 {
	if bar, ok := window.Latest(order.Symbol); ok {
		return bar.Close
	}
	if order.Type == model.OrderTypeLimit {
		return order.LimitPrice
	}
	return snapshot.Marks[order.Symbol]
}

// volatilityScaledQuantity sizes the order so the position's expected
// contribution to portfolio volatility matches the configured target.
// Returns ok=false when there is not enough history to estimate vol.
func (g *RiskGate) volatilityScaledQuantity(symbol string, quantity int64, refPrice, equity float64, window *Window) (int64, bool) {
	closes, err := window.Closes(symbol, g.settings.VolatilityLookback+1)
	if err != nil {
		return quantity, false
	}
	vol := utils.StdDev(utils.SimpleReturns(closes))
	if vol <= 0 {
		return quantity, false
	}

	target := int64(math.Floor(g.settings.VolatilityTarget * equity / (vol * refPrice)))
	if target >= quantity {
		return quantity, true
	}
	return target, true
}

// capQuantity limits the post-fill position value to MaxPositionSize of
// equity. Returns the allowed quantity and ok=false when not even one
// unit fits under the cap.
func (g *RiskGate) capQuantity(currentQty int64, side model.OrderSide, quantity int64, refPrice, equity float64) (int64, bool) {
	signed := quantity
	if side == model.OrderSideSell {
		signed = -signed
	}
	postAbs := abs64(currentQty + signed)
	postValue := float64(postAbs) * refPrice
	cap := g.settings.MaxPositionSize * equity

	if postValue <= cap+sizeEpsilon {
		return quantity, true
	}

	allowedAbs := int64(math.Floor((cap + sizeEpsilon) / refPrice))
	allowedAdd := allowedAbs - abs64(currentQty)
	if allowedAdd <= 0 {
		return 0, false
	}
	return allowedAdd, true
}

// cashWithinBounds projects the post-fill cash ratio from the reference
// price (slippage and commission are execution details the gate does not
// model) and checks it against [MinCashRatio, MaxCashRatio].
func (g *RiskGate) cashWithinBounds(side model.OrderSide, quantity int64, refPrice float64, snapshot model.PortfolioSnapshot) bool {
	notional := float64(quantity) * refPrice
	projectedCash := snapshot.Cash
	if side == model.OrderSideBuy {
		projectedCash -= notional
	} else {
		projectedCash += notional
	}

	// Swapping cash for a position (or back) leaves equity unchanged at
	// the reference price.
	if snapshot.Equity <= 0 {
		return false
	}
	ratio := projectedCash / snapshot.Equity

	return ratio >= g.settings.MinCashRatio-sizeEpsilon && ratio <= g.settings.MaxCashRatio+sizeEpsilon
}

// correlationAllowed rejects a new entry that would leave the portfolio
// holding more than one pair of positions whose trailing return
// correlation exceeds the configured threshold.
func (g *RiskGate) correlationAllowed(symbol string, snapshot model.PortfolioSnapshot, window *Window) bool {
	lookback := g.settings.CorrelationLookback
	threshold := g.settings.MaxPairwiseCorrelation
	if threshold >= 1 {
		return true
	}

	symbols := sortedSymbols(snapshot.Positions)
	symbols = append(symbols, symbol)

	returns := make(map[string][]float64, len(symbols))
	for _, sym := range symbols {
		closes, err := window.Closes(sym, lookback+1)
		if err != nil {
			continue // not enough history: the pair cannot be assessed
		}
		returns[sym] = utils.SimpleReturns(closes)
	}

	highPairs := 0
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			a, okA := returns[symbols[i]]
			b, okB := returns[symbols[j]]
			if !okA || !okB {
				continue
			}
			if utils.Correlation(a, b) > threshold {
				highPairs++
			}
		}
	}
	return highPairs <= 1
}

func isIncrease(currentQty, signedOrderQty int64) bool {
	return abs64(currentQty+signedOrderQty) > abs64(currentQty)
}

func reject(d model.RiskDecision, reason string) model.RiskDecision {
	d.Outcome = model.RiskOutcomeRejected
	d.Reason = reason
	d.AdjustedQuantity = 0
	return d
}

func closeOrder(pos model.Position, ts time.Time) model.Order {
	side := model.OrderSideSell
	if pos.Quantity < 0 {
		side = model.OrderSideBuy
	}
	return model.Order{
		Symbol:      pos.Symbol,
		Side:        side,
		Quantity:    abs64(pos.Quantity),
		Type:        model.OrderTypeMarket,
		SubmittedAt: ts,
	}
}

func closeAllOrders(snapshot model.PortfolioSnapshot, ts time.Time) []model.Order {
	var orders []model.Order
	for _, symbol := range sortedSymbols(snapshot.Positions) {
		orders = append(orders, closeOrder(snapshot.Positions[symbol], ts))
	}
	return orders
}

func sortedSymbols(positions map[string]model.Position) []string {
	symbols := make([]string, 0, len(positions))
	for symbol := range positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
