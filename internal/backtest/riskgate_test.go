package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-backtest/internal/model"
)

func defaultRiskSettings() model.RiskSettings {
	return model.RiskSettings{
		MaxPortfolioDrawdown:   0.2,
		MaxPositionSize:        0.1,
		MinCashRatio:           0,
		MaxCashRatio:           1,
		MaxConcurrentPositions: 5,
		MaxPairwiseCorrelation: 0.8,
		CorrelationLookback:    3,
		EnableCircuitBreaker:   true,
		VolatilityLookback:     3,
	}
}

// seriesFromCloses builds daily bars whose close follows the given values.
func seriesFromCloses(symbol string, start time.Time, closes ...float64) []model.Bar {
	bars := make([]model.Bar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, model.Bar{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    10_000,
		})
	}
	return bars
}

// windowAt advances a fresh history over series up to at and returns the
// strategy-facing view.
func windowAt(series map[string][]model.Bar, at time.Time) *Window {
	h := newHistory(series)
	h.advance(at)
	return h.window()
}

func flatSnapshot(ts time.Time, cash float64) model.PortfolioSnapshot {
	return model.PortfolioSnapshot{
		Timestamp:  ts,
		Cash:       cash,
		Positions:  map[string]model.Position{},
		Marks:      map[string]float64{},
		Equity:     cash,
		PeakEquity: cash,
	}
}

func TestRiskGate_PositionSizeCapResizesDown(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)
	window := windowAt(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 50, 50, 50, 50),
	}, at)

	gate := NewRiskGate(defaultRiskSettings())
	snap := flatSnapshot(at, 100_000)

	// 300 * 50 = 15,000 exceeds the 10,000 cap; allowed quantity is 200.
	decision := gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 300, Type: model.OrderTypeMarket,
	}, snap, window)

	assert.Equal(t, model.RiskOutcomeResized, decision.Outcome)
	assert.Equal(t, model.ReasonPositionSizeResized, decision.Reason)
	assert.Equal(t, int64(200), decision.AdjustedQuantity)
	assert.True(t, decision.Approved())
}

func TestRiskGate_ExactlyAtCapApproved(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)
	window := windowAt(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 50, 50, 50, 50),
	}, at)

	gate := NewRiskGate(defaultRiskSettings())
	snap := flatSnapshot(at, 100_000)

	decision := gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 200, Type: model.OrderTypeMarket,
	}, snap, window)

	assert.Equal(t, model.RiskOutcomeApproved, decision.Outcome)
	assert.Equal(t, int64(200), decision.AdjustedQuantity)
}

func TestRiskGate_CapSaturatedPositionRejected(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)
	window := windowAt(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 50, 50, 50, 50),
	}, at)

	gate := NewRiskGate(defaultRiskSettings())
	snap := flatSnapshot(at, 100_000)
	snap.Cash = 90_000
	snap.Positions["AAPL"] = model.Position{Symbol: "AAPL", Quantity: 200, AvgCost: 50}
	snap.Marks["AAPL"] = 50
	snap.Equity = 100_000

	decision := gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket,
	}, snap, window)

	assert.Equal(t, model.RiskOutcomeRejected, decision.Outcome)
	assert.Equal(t, model.ReasonPositionSizeCap, decision.Reason)
	assert.Zero(t, decision.AdjustedQuantity)
}

func TestRiskGate_CircuitBreakerTripsAndStaysTripped(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)
	window := windowAt(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 50, 50, 50, 50),
	}, at)

	gate := NewRiskGate(defaultRiskSettings())

	drawndown := flatSnapshot(at, 79_000)
	drawndown.PeakEquity = 100_000

	assert.True(t, gate.MaybeTrip(drawndown), "ARMED -> TRIPPED transition")
	assert.False(t, gate.MaybeTrip(drawndown), "already tripped, no second transition")
	assert.True(t, gate.Tripped())

	// Recovery does not re-arm within the run.
	recovered := flatSnapshot(at, 100_000)
	decision := gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket,
	}, recovered, window)
	assert.Equal(t, model.ReasonCircuitBreakerTripped, decision.Reason)

	gate.Reset()
	assert.False(t, gate.Tripped())
	decision = gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket,
	}, recovered, window)
	assert.True(t, decision.Approved())
}

func TestRiskGate_TrippedBreakerStillAllowsExits(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)
	window := windowAt(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 50, 50, 50, 50),
	}, at)

	gate := NewRiskGate(defaultRiskSettings())

	snap := flatSnapshot(at, 29_000)
	snap.Positions["AAPL"] = model.Position{Symbol: "AAPL", Quantity: 1000, AvgCost: 50}
	snap.Marks["AAPL"] = 50
	snap.Equity = 79_000
	snap.PeakEquity = 100_000

	decision := gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideSell, Quantity: 1000, Type: model.OrderTypeMarket,
	}, snap, window)
	assert.True(t, decision.Approved(), "winding down positions is allowed after the trip")
	assert.True(t, gate.Tripped())
}

func TestRiskGate_DisabledBreakerNeverTrips(t *testing.T) {
	settings := defaultRiskSettings()
	settings.EnableCircuitBreaker = false
	gate := NewRiskGate(settings)

	snap := flatSnapshot(time.Now(), 50_000)
	snap.PeakEquity = 100_000

	assert.False(t, gate.MaybeTrip(snap))
	assert.False(t, gate.Tripped())
}

func TestRiskGate_CashRatioBounds(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)
	window := windowAt(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 50, 50, 50, 50),
	}, at)

	settings := defaultRiskSettings()
	settings.MinCashRatio = 0.95
	gate := NewRiskGate(settings)
	snap := flatSnapshot(at, 100_000)

	// 150 * 50 = 7,500 would leave cash at 92.5% of equity, below the floor.
	decision := gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 150, Type: model.OrderTypeMarket,
	}, snap, window)
	assert.Equal(t, model.ReasonCashRatioBounds, decision.Reason)

	// 80 * 50 = 4,000 keeps cash at 96%.
	decision = gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 80, Type: model.OrderTypeMarket,
	}, snap, window)
	assert.True(t, decision.Approved())
}

func TestRiskGate_CorrelationFilterRejectsSecondHighPair(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)

	// A, B and C move in lockstep; D moves against them.
	rising := []float64{100, 102, 104, 106}
	falling := []float64{100, 98, 97, 95}
	series := map[string][]model.Bar{
		"AAA": seriesFromCloses("AAA", start, rising...),
		"BBB": seriesFromCloses("BBB", start, rising...),
		"CCC": seriesFromCloses("CCC", start, rising...),
		"DDD": seriesFromCloses("DDD", start, falling...),
	}
	window := windowAt(series, at)

	gate := NewRiskGate(defaultRiskSettings())

	held := flatSnapshot(at, 80_000)
	held.Positions["AAA"] = model.Position{Symbol: "AAA", Quantity: 10, AvgCost: 100}
	held.Positions["BBB"] = model.Position{Symbol: "BBB", Quantity: 10, AvgCost: 100}
	held.Marks["AAA"] = 106
	held.Marks["BBB"] = 106
	held.Equity = 80_000 + 2*10*106

	// AAA and BBB already form one high-correlation pair; adding CCC would
	// create two more.
	decision := gate.Evaluate(model.Order{
		Symbol: "CCC", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket,
	}, held, window)
	assert.Equal(t, model.ReasonCorrelationLimit, decision.Reason)

	// DDD is anti-correlated with both holdings and passes.
	decision = gate.Evaluate(model.Order{
		Symbol: "DDD", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket,
	}, held, window)
	assert.True(t, decision.Approved())
}

func TestRiskGate_FirstHighCorrelationPairAllowed(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)

	rising := []float64{100, 102, 104, 106}
	series := map[string][]model.Bar{
		"AAA": seriesFromCloses("AAA", start, rising...),
		"BBB": seriesFromCloses("BBB", start, rising...),
	}
	window := windowAt(series, at)

	gate := NewRiskGate(defaultRiskSettings())

	held := flatSnapshot(at, 90_000)
	held.Positions["AAA"] = model.Position{Symbol: "AAA", Quantity: 10, AvgCost: 100}
	held.Marks["AAA"] = 106
	held.Equity = 90_000 + 10*106

	decision := gate.Evaluate(model.Order{
		Symbol: "BBB", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket,
	}, held, window)
	assert.True(t, decision.Approved(), "a single high-correlation pair is tolerated")
}

func TestRiskGate_MaxConcurrentPositionsRejectsNewEntry(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)
	window := windowAt(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 50, 50, 50, 50),
		"MSFT": seriesFromCloses("MSFT", start, 50, 50, 50, 50),
	}, at)

	settings := defaultRiskSettings()
	settings.MaxConcurrentPositions = 1
	gate := NewRiskGate(settings)

	snap := flatSnapshot(at, 99_000)
	snap.Positions["MSFT"] = model.Position{Symbol: "MSFT", Quantity: 20, AvgCost: 50}
	snap.Marks["MSFT"] = 50
	snap.Equity = 100_000

	decision := gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket,
	}, snap, window)
	assert.Equal(t, model.ReasonMaxPositions, decision.Reason)

	// Adding to the existing position is not a new entry.
	decision = gate.Evaluate(model.Order{
		Symbol: "MSFT", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket,
	}, snap, window)
	assert.True(t, decision.Approved())
}

func TestRiskGate_VolatilityTargetScalesQuantity(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := start.AddDate(0, 0, 3)
	window := windowAt(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 110, 99, 108),
	}, at)

	settings := defaultRiskSettings()
	settings.VolatilityTarget = 0.001
	gate := NewRiskGate(settings)
	snap := flatSnapshot(at, 100_000)

	decision := gate.Evaluate(model.Order{
		Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 100, Type: model.OrderTypeMarket,
	}, snap, window)

	assert.Equal(t, model.RiskOutcomeResized, decision.Outcome)
	assert.Equal(t, model.ReasonVolatilityResized, decision.Reason)
	assert.Less(t, decision.AdjustedQuantity, int64(100))
	assert.Positive(t, decision.AdjustedQuantity)
}

func TestRiskGate_InvalidOrderRejected(t *testing.T) {
	gate := NewRiskGate(defaultRiskSettings())
	snap := flatSnapshot(time.Now(), 100_000)
	window := windowAt(map[string][]model.Bar{}, time.Now())

	decision := gate.Evaluate(model.Order{Symbol: "", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket}, snap, window)
	assert.Equal(t, model.ReasonInvalidOrder, decision.Reason)

	decision = gate.Evaluate(model.Order{Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 0, Type: model.OrderTypeMarket}, snap, window)
	assert.Equal(t, model.ReasonInvalidOrder, decision.Reason)
}

func TestRiskGate_StopLossExits(t *testing.T) {
	settings := defaultRiskSettings()
	settings.StopLossPct = 0.05
	gate := NewRiskGate(settings)

	ts := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	snap := flatSnapshot(ts, 50_000)
	snap.Positions["AAPL"] = model.Position{Symbol: "AAPL", Quantity: 100, AvgCost: 100}
	snap.Positions["MSFT"] = model.Position{Symbol: "MSFT", Quantity: -50, AvgCost: 200}
	snap.Positions["GOOG"] = model.Position{Symbol: "GOOG", Quantity: 10, AvgCost: 100}
	snap.Marks["AAPL"] = 94  // long, below 95 stop
	snap.Marks["MSFT"] = 211 // short, above 210 stop
	snap.Marks["GOOG"] = 99  // within tolerance

	orders := gate.StopLossExits(snap, ts)
	require.Len(t, orders, 2)

	assert.Equal(t, "AAPL", orders[0].Symbol)
	assert.Equal(t, model.OrderSideSell, orders[0].Side)
	assert.Equal(t, int64(100), orders[0].Quantity)

	assert.Equal(t, "MSFT", orders[1].Symbol)
	assert.Equal(t, model.OrderSideBuy, orders[1].Side)
	assert.Equal(t, int64(50), orders[1].Quantity)
}

func TestRiskGate_ForcedExitsFlattenEverything(t *testing.T) {
	gate := NewRiskGate(defaultRiskSettings())

	ts := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	snap := flatSnapshot(ts, 50_000)
	snap.Positions["BBB"] = model.Position{Symbol: "BBB", Quantity: -20, AvgCost: 10}
	snap.Positions["AAA"] = model.Position{Symbol: "AAA", Quantity: 100, AvgCost: 50}

	orders := gate.ForcedExits(snap, ts)
	require.Len(t, orders, 2)
	assert.Equal(t, "AAA", orders[0].Symbol, "deterministic symbol order")
	assert.Equal(t, model.OrderSideSell, orders[0].Side)
	assert.Equal(t, model.OrderSideBuy, orders[1].Side)
}
