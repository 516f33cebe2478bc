package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang-backtest/internal/model"
	"golang-backtest/pkg/logger"
)

// Strategy is the decision unit driven by the engine. Implementations must
// not retain references into engine state; every view they receive is a
// snapshot or copy.
type Strategy interface {
	// Initialize is called once before the first tick.
	Initialize(ctx context.Context) error
	// OnData is called once per tick with the visible history (all bars
	// with timestamp <= the tick). Returning ErrInsufficientData skips
	// the tick for this strategy without failing the run.
	OnData(ctx context.Context, ts time.Time, window *Window) ([]model.Order, error)
	// OnFill is called for every realized fill, including forced exits.
	OnFill(ctx context.Context, fill model.Fill)
	// Finalize is called once after the final tick.
	Finalize(ctx context.Context)
}

// RunConfig is the full configuration of one backtest run, immutable for
// the run's duration.
type RunConfig struct {
	InitialCash  float64
	Risk         model.RiskSettings
	Execution    ExecutionSettings
	RiskFreeRate float64
}

func (c RunConfig) Validate() error {
	if c.InitialCash <= 0 {
		return &ConfigurationError{Err: fmt.Errorf("initial cash must be positive, got %v", c.InitialCash)}
	}
	if c.Execution.SlippagePct < 0 || c.Execution.SlippagePct >= 1 {
		return &ConfigurationError{Err: fmt.Errorf("slippage_pct must be within [0, 1), got %v", c.Execution.SlippagePct)}
	}
	if c.Execution.CommissionPct < 0 || c.Execution.CommissionPct >= 1 {
		return &ConfigurationError{Err: fmt.Errorf("commission_pct must be within [0, 1), got %v", c.Execution.CommissionPct)}
	}
	if c.Execution.MaxVolumeShare < 0 || c.Execution.MaxVolumeShare > 1 {
		return &ConfigurationError{Err: fmt.Errorf("max_volume_share must be within [0, 1], got %v", c.Execution.MaxVolumeShare)}
	}
	if err := c.Risk.Validate(); err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}

// BacktestResult is the exported outcome of a run: the equity curve, the
// fill and trade logs, every risk decision for auditability, and the
// aggregate metrics. The engine itself never persists anything.
type BacktestResult struct {
	StartDate      time.Time                `json:"start_date"`
	EndDate        time.Time                `json:"end_date"`
	Snapshots      []model.PortfolioSnapshot `json:"snapshots"`
	Fills          []model.Fill             `json:"fills"`
	Trades         []model.TradeLog         `json:"trades"`
	Decisions      []model.RiskDecision     `json:"decisions"`
	DroppedSymbols map[string]string        `json:"dropped_symbols,omitempty"`
	Metrics        Metrics                  `json:"metrics"`
	Interrupted    bool                     `json:"interrupted"`
}

// Engine binds ledger, risk gate and simulator into the time-stepped loop.
// One engine serves exactly one run; parallel sweeps build one engine per
// run so no mutable state is shared.
type Engine struct {
	log    *logger.Logger
	cfg    RunConfig
	gate   *RiskGate
	sim    *OrderSimulator
	ledger *PortfolioLedger
}

// NewEngine validates the configuration and builds an engine. Invalid
// settings fail here, before any simulation step executes.
func NewEngine(cfg RunConfig, log *logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log:    log,
		cfg:    cfg,
		gate:   NewRiskGate(cfg.Risk),
		sim:    NewOrderSimulator(cfg.Execution),
		ledger: NewPortfolioLedger(cfg.InitialCash),
	}, nil
}

// Run replays the bar series through the strategy, one logical tick at a
// time. Bars are processed in strictly increasing timestamp order; within
// a tick, orders are processed in submission order and each order observes
// the ledger as mutated by the orders before it. A cooperative stop signal
// is checked once per tick and yields a partial result.
func (e *Engine) Run(ctx context.Context, strategy Strategy, source BarSource, start, end time.Time) (*BacktestResult, error) {
	if !start.Before(end) {
		return nil, &ConfigurationError{Err: fmt.Errorf("start %s is not before end %s", start, end)}
	}

	series, err := source.Bars(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load bars: %w", err)
	}

	result := &BacktestResult{
		StartDate:      start,
		EndDate:        end,
		DroppedSymbols: make(map[string]string),
	}

	series = e.validateSeries(ctx, series, result)
	if len(series) == 0 {
		return nil, &ConfigurationError{Err: errors.New("no usable bar series for any symbol")}
	}

	if err := strategy.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("strategy initialization failed: %w", err)
	}

	history := newHistory(series)
	ticks := history.timeline()

	for _, ts := range ticks {
		if ctx.Err() != nil {
			e.log.WarnContext(ctx, "Backtest stopped early",
				logger.TimeField("tick", ts),
				logger.IntField("snapshots", len(e.ledger.Snapshots())),
			)
			result.Interrupted = true
			break
		}

		history.advance(ts)
		window := history.window()
		e.markToMarket(history)

		e.runForcedExits(ctx, strategy, history, ts)
		e.runStrategyTick(ctx, strategy, history, window, ts, result)

		e.ledger.RecordSnapshot(ts)
	}

	strategy.Finalize(ctx)

	result.Snapshots = e.ledger.Snapshots()
	result.Fills = e.ledger.Fills()
	result.Trades = e.ledger.Trades()
	result.Metrics = ResultsAggregator{RiskFreeRate: e.cfg.RiskFreeRate}.Summarize(result.Snapshots, result.Trades)

	return result, nil
}

// validateSeries drops symbols with corrupt data: the violation is fatal
// for that symbol only and the run continues for the others.
func (e *Engine) validateSeries(ctx context.Context, series map[string][]model.Bar, result *BacktestResult) map[string][]model.Bar {
	usable := make(map[string][]model.Bar, len(series))
	for symbol, bars := range series {
		if err := validateBars(symbol, bars); err != nil {
			e.log.WarnContext(ctx, "Dropping symbol with corrupt bar data",
				logger.StringField("symbol", symbol),
				logger.ErrorField(err),
			)
			result.DroppedSymbols[symbol] = err.Error()
			continue
		}
		usable[symbol] = bars
	}
	return usable
}

func validateBars(symbol string, bars []model.Bar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return &DataIntegrityError{Symbol: symbol, Err: err}
		}
		if i > 0 && !bars[i-1].Timestamp.Before(b.Timestamp) {
			return &DataIntegrityError{
				Symbol: symbol,
				Err:    fmt.Errorf("timestamps not strictly increasing at index %d", i),
			}
		}
	}
	return nil
}

// markToMarket refreshes the ledger marks with the close of every bar at
// the current cursor.
func (e *Engine) markToMarket(history *History) {
	for symbol := range history.series {
		if bar, ok := history.barAt(symbol); ok {
			e.ledger.MarkPrice(symbol, bar.Close)
		}
	}
}

// runForcedExits executes policy-mandated liquidations: per-position stop
// losses and, once the circuit breaker trips, the flattening of every open
// position within the same tick.
func (e *Engine) runForcedExits(ctx context.Context, strategy Strategy, history *History, ts time.Time) {
	snap := e.ledger.View(ts)

	for _, order := range e.gate.StopLossExits(snap, ts) {
		e.executeForced(ctx, strategy, history, order, model.ReasonStopLoss)
	}

	snap = e.ledger.View(ts)
	if e.gate.MaybeTrip(snap) {
		e.log.WarnContext(ctx, "Circuit breaker tripped, liquidating portfolio",
			logger.TimeField("tick", ts),
			logger.Float64Field("drawdown", snap.Drawdown()),
		)
	}
	if e.gate.Tripped() && snap.OpenPositionCount() > 0 {
		for _, order := range e.gate.ForcedExits(snap, ts) {
			e.executeForced(ctx, strategy, history, order, model.ReasonForcedLiquidation)
		}
	}
}

func (e *Engine) executeForced(ctx context.Context, strategy Strategy, history *History, order model.Order, reason string) {
	bar, ok := history.barAt(order.Symbol)
	if !ok {
		// No bar for the symbol this tick; the position stays open and
		// the exit is retried next tick.
		return
	}
	fill := e.sim.Execute(order, bar)
	if fill == nil {
		return
	}
	fill.Reason = reason
	e.ledger.ApplyFill(*fill)
	strategy.OnFill(ctx, *fill)
}

// runStrategyTick collects the strategy's orders for the tick and routes
// each through risk gate and simulator in submission order.
func (e *Engine) runStrategyTick(ctx context.Context, strategy Strategy, history *History, window *Window, ts time.Time, result *BacktestResult) {
	orders, err := strategy.OnData(ctx, ts, window)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			// Fail-soft: the lookback is not satisfied yet, keep the
			// run alive with no orders for this tick.
			e.log.DebugContext(ctx, "Strategy lookback not satisfied, skipping tick",
				logger.TimeField("tick", ts),
			)
			return
		}
		e.log.ErrorContext(ctx, "Strategy error, skipping tick",
			logger.TimeField("tick", ts),
			logger.ErrorField(err),
		)
		return
	}

	for _, order := range orders {
		order.SubmittedAt = ts

		decision := e.gate.Evaluate(order, e.ledger.View(ts), window)
		result.Decisions = append(result.Decisions, decision)

		if !decision.Approved() {
			e.log.DebugContext(ctx, "Order rejected",
				logger.StringField("symbol", order.Symbol),
				logger.StringField("side", string(order.Side)),
				logger.StringField("reason", decision.Reason),
			)
			continue
		}

		bar, ok := history.barAt(order.Symbol)
		if !ok {
			result.Decisions = append(result.Decisions, model.RiskDecision{
				Order:   order,
				Outcome: model.RiskOutcomeRejected,
				Reason:  model.ReasonNoBar,
			})
			continue
		}

		// The order itself stays immutable; the adjusted quantity from
		// the risk decision is applied to an execution copy.
		adjusted := order
		adjusted.Quantity = decision.AdjustedQuantity

		fill := e.sim.Execute(adjusted, bar)
		if fill == nil {
			result.Decisions = append(result.Decisions, model.RiskDecision{
				Order:   order,
				Outcome: model.RiskOutcomeRejected,
				Reason:  model.ReasonOrderLapsed,
			})
			continue
		}

		e.ledger.ApplyFill(*fill)
		strategy.OnFill(ctx, *fill)
	}
}
