package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-backtest/internal/model"
	"golang-backtest/pkg/logger"
)

// scriptedStrategy emits pre-planned orders keyed by tick timestamp. Kept
// stateless across OnData calls so two runs over the same data behave
// identically.
type scriptedStrategy struct {
	orders  map[time.Time][]model.Order
	fills   []model.Fill
	onData  func(ts time.Time, window *Window) error
	onTicks []time.Time
}

func (s *scriptedStrategy) Initialize(ctx context.Context) error { return nil }

func (s *scriptedStrategy) OnData(ctx context.Context, ts time.Time, window *Window) ([]model.Order, error) {
	s.onTicks = append(s.onTicks, ts)
	if s.onData != nil {
		if err := s.onData(ts, window); err != nil {
			return nil, err
		}
	}
	return s.orders[ts], nil
}

func (s *scriptedStrategy) OnFill(ctx context.Context, fill model.Fill) {
	s.fills = append(s.fills, fill)
}

func (s *scriptedStrategy) Finalize(ctx context.Context) {}

func testRunConfig() RunConfig {
	return RunConfig{
		InitialCash: 100_000,
		Risk:        defaultRiskSettings(),
	}
}

func day(i int) time.Time {
	return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestEngine_RunIsDeterministic(t *testing.T) {
	start, end := day(0), day(9)
	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 101, 103, 102, 105, 107, 104, 108, 110, 109),
		"MSFT": seriesFromCloses("MSFT", start, 300, 298, 301, 305, 303, 306, 310, 308, 312, 315),
	}
	source := NewStaticBarSource(series)

	run := func() *BacktestResult {
		strat := &scriptedStrategy{orders: map[time.Time][]model.Order{
			day(1): {{Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 50, Type: model.OrderTypeMarket}},
			day(3): {{Symbol: "MSFT", Side: model.OrderSideBuy, Quantity: 10, Type: model.OrderTypeMarket}},
			day(7): {{Symbol: "AAPL", Side: model.OrderSideSell, Quantity: 50, Type: model.OrderTypeMarket}},
		}}
		engine, err := NewEngine(testRunConfig(), logger.NewNop())
		require.NoError(t, err)
		result, err := engine.Run(context.Background(), strat, source, start, end)
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()

	assert.Equal(t, first.Fills, second.Fills)
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.Metrics, second.Metrics)
	assert.Equal(t, first.Decisions, second.Decisions)
}

func TestEngine_OneSnapshotPerTick(t *testing.T) {
	start, end := day(0), day(4)
	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 101, 102, 103, 104),
	}

	strat := &scriptedStrategy{}
	engine, err := NewEngine(testRunConfig(), logger.NewNop())
	require.NoError(t, err)

	result, err := engine.Run(context.Background(), strat, NewStaticBarSource(series), start, end)
	require.NoError(t, err)

	require.Len(t, result.Snapshots, 5)
	for i := 1; i < len(result.Snapshots); i++ {
		assert.True(t, result.Snapshots[i-1].Timestamp.Before(result.Snapshots[i].Timestamp),
			"snapshots advance in strictly increasing time")
	}
	assert.False(t, result.Interrupted)
}

func TestEngine_NoLookAhead(t *testing.T) {
	start, end := day(0), day(9)
	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 101, 103, 102, 105, 107, 104, 108, 110, 109),
	}

	strat := &scriptedStrategy{
		onData: func(ts time.Time, window *Window) error {
			assert.Equal(t, ts, window.At())
			for _, symbol := range window.Symbols() {
				for _, bar := range window.Bars(symbol) {
					assert.False(t, bar.Timestamp.After(ts),
						"window exposed a bar from the future")
				}
			}
			return nil
		},
	}

	engine, err := NewEngine(testRunConfig(), logger.NewNop())
	require.NoError(t, err)
	_, err = engine.Run(context.Background(), strat, NewStaticBarSource(series), start, end)
	require.NoError(t, err)
	assert.Len(t, strat.onTicks, 10)
}

func TestEngine_CancellationYieldsPartialResult(t *testing.T) {
	start, end := day(0), day(9)
	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 101, 103, 102, 105, 107, 104, 108, 110, 109),
	}

	ctx, cancel := context.WithCancel(context.Background())
	strat := &scriptedStrategy{
		onData: func(ts time.Time, window *Window) error {
			if ts.Equal(day(4)) {
				cancel()
			}
			return nil
		},
	}

	engine, err := NewEngine(testRunConfig(), logger.NewNop())
	require.NoError(t, err)

	result, err := engine.Run(ctx, strat, NewStaticBarSource(series), start, end)
	require.NoError(t, err, "cancellation yields a partial result, not an error")
	assert.True(t, result.Interrupted)
	assert.Len(t, result.Snapshots, 5, "ticks up to and including the cancel tick are recorded")
}

func TestEngine_InsufficientDataSkipsTickWithoutFailing(t *testing.T) {
	start, end := day(0), day(5)
	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 101, 102, 103, 104, 105),
	}

	strat := &scriptedStrategy{
		orders: map[time.Time][]model.Order{
			day(4): {{Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 5, Type: model.OrderTypeMarket}},
		},
		onData: func(ts time.Time, window *Window) error {
			if _, err := window.Last("AAPL", 4); err != nil {
				return err // ErrInsufficientData on the first three ticks
			}
			return nil
		},
	}

	engine, err := NewEngine(testRunConfig(), logger.NewNop())
	require.NoError(t, err)

	result, err := engine.Run(context.Background(), strat, NewStaticBarSource(series), start, end)
	require.NoError(t, err)
	assert.False(t, result.Interrupted)
	require.Len(t, result.Fills, 1, "the order after the lookback warms up still executes")
	assert.Len(t, result.Snapshots, 6, "skipped ticks still get snapshots")
}

func TestEngine_CorruptSymbolIsDroppedRunContinues(t *testing.T) {
	start, end := day(0), day(3)
	bad := seriesFromCloses("BAD", start, 100, 101, 102, 103)
	bad[2].Low = -1

	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 101, 102, 103),
		"BAD":  bad,
	}

	strat := &scriptedStrategy{}
	engine, err := NewEngine(testRunConfig(), logger.NewNop())
	require.NoError(t, err)

	result, err := engine.Run(context.Background(), strat, NewStaticBarSource(series), start, end)
	require.NoError(t, err)
	assert.Contains(t, result.DroppedSymbols, "BAD")
	assert.Len(t, result.Snapshots, 4)
}

func TestEngine_AllSymbolsCorruptFailsRun(t *testing.T) {
	start, end := day(0), day(3)
	bad := seriesFromCloses("BAD", start, 100, 101, 102, 103)
	bad[1].High = bad[1].Low - 1

	engine, err := NewEngine(testRunConfig(), logger.NewNop())
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), &scriptedStrategy{}, NewStaticBarSource(map[string][]model.Bar{"BAD": bad}), start, end)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEngine_NonMonotonicTimestampsDropSymbol(t *testing.T) {
	start, end := day(0), day(3)
	bad := seriesFromCloses("BAD", start, 100, 101, 102, 103)
	bad[2].Timestamp = bad[1].Timestamp

	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 101, 102, 103),
		"BAD":  bad,
	}

	engine, err := NewEngine(testRunConfig(), logger.NewNop())
	require.NoError(t, err)

	result, err := engine.Run(context.Background(), &scriptedStrategy{}, NewStaticBarSource(series), start, end)
	require.NoError(t, err)
	assert.Contains(t, result.DroppedSymbols, "BAD")
}

func TestEngine_SequentialOrdersObservePriorFills(t *testing.T) {
	start, end := day(0), day(2)
	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 100, 100),
		"MSFT": seriesFromCloses("MSFT", start, 100, 100, 100),
	}

	cfg := testRunConfig()
	cfg.Risk.MaxPositionSize = 1.0
	cfg.Risk.MinCashRatio = 0.9

	// The first buy consumes 5% of equity; the second identical buy would
	// push cash below the 90% floor and must be rejected mid-tick.
	strat := &scriptedStrategy{orders: map[time.Time][]model.Order{
		day(1): {
			{Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 50, Type: model.OrderTypeMarket},
			{Symbol: "MSFT", Side: model.OrderSideBuy, Quantity: 60, Type: model.OrderTypeMarket},
		},
	}}

	engine, err := NewEngine(cfg, logger.NewNop())
	require.NoError(t, err)

	result, err := engine.Run(context.Background(), strat, NewStaticBarSource(series), start, end)
	require.NoError(t, err)

	require.Len(t, result.Fills, 1)
	assert.Equal(t, "AAPL", result.Fills[0].Symbol)

	require.Len(t, result.Decisions, 2)
	assert.True(t, result.Decisions[0].Approved())
	assert.Equal(t, model.ReasonCashRatioBounds, result.Decisions[1].Reason)
}

func TestEngine_CircuitBreakerLiquidatesSameTick(t *testing.T) {
	start, end := day(0), day(4)
	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 100, 70, 70, 70),
	}

	cfg := testRunConfig()
	cfg.Risk.MaxPositionSize = 1.0

	strat := &scriptedStrategy{orders: map[time.Time][]model.Order{
		day(1): {{Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 900, Type: model.OrderTypeMarket}},
	}}

	engine, err := NewEngine(cfg, logger.NewNop())
	require.NoError(t, err)

	result, err := engine.Run(context.Background(), strat, NewStaticBarSource(series), start, end)
	require.NoError(t, err)

	// The 30% gap down breaches the 20% drawdown cap on day 2; the whole
	// portfolio is flattened within that same tick.
	require.Len(t, result.Fills, 2)
	liquidation := result.Fills[1]
	assert.Equal(t, model.OrderSideSell, liquidation.Side)
	assert.Equal(t, int64(900), liquidation.Quantity)
	assert.Equal(t, model.ReasonForcedLiquidation, liquidation.Reason)
	assert.Equal(t, day(2), liquidation.Timestamp)

	// No re-entry after the trip.
	for _, snap := range result.Snapshots[2:] {
		assert.Zero(t, snap.OpenPositionCount())
	}

	require.Len(t, result.Trades, 1)
	assert.Equal(t, model.ReasonForcedLiquidation, result.Trades[0].ExitReason)
}

func TestEngine_StopLossExitBeforeStrategyOrders(t *testing.T) {
	start, end := day(0), day(3)
	series := map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 100, 93, 93),
	}

	cfg := testRunConfig()
	cfg.Risk.StopLossPct = 0.05
	cfg.Risk.MaxPositionSize = 1.0
	cfg.Risk.EnableCircuitBreaker = false

	strat := &scriptedStrategy{orders: map[time.Time][]model.Order{
		day(1): {{Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 100, Type: model.OrderTypeMarket}},
	}}

	engine, err := NewEngine(cfg, logger.NewNop())
	require.NoError(t, err)

	result, err := engine.Run(context.Background(), strat, NewStaticBarSource(series), start, end)
	require.NoError(t, err)

	// Day 2's 7% drop breaches the 5% stop; the position is closed at the
	// day 2 bar.
	require.Len(t, result.Trades, 1)
	assert.Equal(t, model.ReasonStopLoss, result.Trades[0].ExitReason)
	assert.Equal(t, day(2), result.Trades[0].ExitTime)
}

func TestEngine_InvalidConfigFailsBeforeRun(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{name: "non-positive initial cash", mutate: func(c *RunConfig) { c.InitialCash = 0 }},
		{name: "negative slippage", mutate: func(c *RunConfig) { c.Execution.SlippagePct = -0.1 }},
		{name: "min cash above max cash", mutate: func(c *RunConfig) {
			c.Risk.MinCashRatio = 0.8
			c.Risk.MaxCashRatio = 0.5
		}},
		{name: "zero position size", mutate: func(c *RunConfig) { c.Risk.MaxPositionSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testRunConfig()
			tt.mutate(&cfg)

			_, err := NewEngine(cfg, logger.NewNop())
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestEngine_StartMustPrecedeEnd(t *testing.T) {
	engine, err := NewEngine(testRunConfig(), logger.NewNop())
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), &scriptedStrategy{}, NewStaticBarSource(nil), day(5), day(5))
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
