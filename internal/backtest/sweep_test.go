package backtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-backtest/internal/model"
	"golang-backtest/pkg/logger"
)

func TestSweepRunner_ResultsInGridOrder(t *testing.T) {
	start, end := day(0), day(5)
	source := NewStaticBarSource(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 102, 104, 103, 106, 108),
	})

	variants := make([]SweepVariant, 0, 6)
	for i := 0; i < 6; i++ {
		cfg := testRunConfig()
		cfg.Risk.MaxPositionSize = 0.05 + 0.01*float64(i)
		variants = append(variants, SweepVariant{
			Name:   fmt.Sprintf("cap-%d", i),
			Config: cfg,
		})
	}

	factory := func(variant string) (Strategy, error) {
		return &scriptedStrategy{orders: map[time.Time][]model.Order{
			day(1): {{Symbol: "AAPL", Side: model.OrderSideBuy, Quantity: 200, Type: model.OrderTypeMarket}},
		}}, nil
	}

	runner := NewSweepRunner(logger.NewNop(), 3)
	results := runner.Run(context.Background(), variants, factory, source, start, end)

	require.Len(t, results, 6)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("cap-%d", i), r.Name, "results keep grid order")
		require.NoError(t, r.Err)
		require.NotNil(t, r.Result)
	}

	// Looser caps admit more quantity, so results must differ across the
	// grid: each variant ran against its own ledger and gate.
	firstQty := results[0].Result.Fills[0].Quantity
	lastQty := results[5].Result.Fills[0].Quantity
	assert.Less(t, firstQty, lastQty)
}

func TestSweepRunner_FailedVariantDoesNotAffectSiblings(t *testing.T) {
	start, end := day(0), day(3)
	source := NewStaticBarSource(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 101, 102, 103),
	})

	good := testRunConfig()
	bad := testRunConfig()
	bad.InitialCash = -1

	variants := []SweepVariant{
		{Name: "good-a", Config: good},
		{Name: "bad", Config: bad},
		{Name: "good-b", Config: good},
	}

	factory := func(variant string) (Strategy, error) {
		return &scriptedStrategy{}, nil
	}

	runner := NewSweepRunner(logger.NewNop(), 2)
	results := runner.Run(context.Background(), variants, factory, source, start, end)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.NotNil(t, results[0].Result)
	assert.Nil(t, results[1].Result)
}

func TestSweepRunner_FactoryErrorReportedPerVariant(t *testing.T) {
	start, end := day(0), day(3)
	source := NewStaticBarSource(map[string][]model.Bar{
		"AAPL": seriesFromCloses("AAPL", start, 100, 101, 102, 103),
	})

	variants := []SweepVariant{
		{Name: "ok", Config: testRunConfig()},
		{Name: "broken", Config: testRunConfig()},
	}

	factory := func(variant string) (Strategy, error) {
		if variant == "broken" {
			return nil, fmt.Errorf("no strategy for %s", variant)
		}
		return &scriptedStrategy{}, nil
	}

	runner := NewSweepRunner(logger.NewNop(), 1)
	results := runner.Run(context.Background(), variants, factory, source, start, end)

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
}
