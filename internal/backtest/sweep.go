package backtest

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"golang-backtest/pkg/logger"
)

// SweepVariant is one point on a parameter grid: a named run configuration.
type SweepVariant struct {
	Name   string
	Config RunConfig
}

// SweepResult pairs a variant with its outcome. Err is set when that run
// failed; other runs are unaffected.
type SweepResult struct {
	Name   string
	Result *BacktestResult
	Err    error
}

// StrategyFactory builds a fresh strategy instance for the named variant
// so sweep runs never share strategy state.
type StrategyFactory func(variant string) (Strategy, error)

// SweepRunner executes independent backtest runs concurrently. Each run
// gets its own engine, ledger and risk gate; the only shared input is the
// bar source, which must be safe for concurrent reads. Results are
// returned in grid order regardless of completion order, keeping sweeps
// deterministic.
type SweepRunner struct {
	log            *logger.Logger
	maxConcurrency int
}

func NewSweepRunner(log *logger.Logger, maxConcurrency int) *SweepRunner {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &SweepRunner{log: log, maxConcurrency: maxConcurrency}
}

// Run fans the variants out over a bounded worker group and waits for all
// of them. A single failed variant does not cancel its siblings; only
// context cancellation stops the sweep.
func (r *SweepRunner) Run(
	ctx context.Context,
	variants []SweepVariant,
	newStrategy StrategyFactory,
	source BarSource,
	start, end time.Time,
) []SweepResult {
	results := make([]SweepResult, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)

	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			results[i] = r.runVariant(gctx, variant, newStrategy, source, start, end)
			return nil
		})
	}

	// Workers only ever return nil; errors live on the per-variant slot.
	_ = g.Wait()

	return results
}

func (r *SweepRunner) runVariant(
	ctx context.Context,
	variant SweepVariant,
	newStrategy StrategyFactory,
	source BarSource,
	start, end time.Time,
) SweepResult {
	r.log.DebugContext(ctx, "Starting sweep variant", logger.StringField("variant", variant.Name))

	engine, err := NewEngine(variant.Config, r.log)
	if err != nil {
		return SweepResult{Name: variant.Name, Err: err}
	}

	strat, err := newStrategy(variant.Name)
	if err != nil {
		return SweepResult{Name: variant.Name, Err: err}
	}

	result, err := engine.Run(ctx, strat, source, start, end)
	if err != nil {
		r.log.WarnContext(ctx, "Sweep variant failed",
			logger.StringField("variant", variant.Name),
			logger.ErrorField(err),
		)
		return SweepResult{Name: variant.Name, Err: err}
	}

	return SweepResult{Name: variant.Name, Result: result}
}
