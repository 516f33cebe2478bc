package backtest

import (
	"time"

	"golang-backtest/internal/model"
)

// PortfolioLedger owns cash, open positions and the snapshot history for a
// single run. It is mutated only by the engine's execution goroutine; all
// mutation flows through ApplyFill and RecordSnapshot.
type PortfolioLedger struct {
	initialCash float64
	cash        float64
	positions   map[string]*model.Position
	marks       map[string]float64
	peakEquity  float64
	snapshots   []model.PortfolioSnapshot
	trades      []model.TradeLog
	fills       []model.Fill
}

func NewPortfolioLedger(initialCash float64) *PortfolioLedger {
	return &PortfolioLedger{
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]*model.Position),
		marks:       make(map[string]float64),
		peakEquity:  initialCash,
	}
}

// Cash returns the current cash balance.
func (l *PortfolioLedger) Cash() float64 {
	return l.cash
}

// Equity returns cash plus the marked value of all open positions.
func (l *PortfolioLedger) Equity() float64 {
	equity := l.cash
	for symbol, pos := range l.positions {
		equity += pos.MarketValue(l.marks[symbol])
	}
	return equity
}

// Position returns a copy of the open position for symbol, if any.
func (l *PortfolioLedger) Position(symbol string) (model.Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// MarkPrice records the latest available close for symbol, used to mark
// positions to market.
func (l *PortfolioLedger) MarkPrice(symbol string, price float64) {
	l.marks[symbol] = price
}

// ApplyFill books a fill into cash and positions and returns the resulting
// (unappended) portfolio view. Buys debit notional plus commission, sells
// credit notional minus commission. Same-direction adds update the
// weighted-average cost basis; reductions book realized P&L against that
// basis and emit a trade log entry.
func (l *PortfolioLedger) ApplyFill(f model.Fill) model.PortfolioSnapshot {
	if f.Side == model.OrderSideBuy {
		l.cash -= f.Notional() + f.Commission
	} else {
		l.cash += f.Notional() - f.Commission
	}
	l.fills = append(l.fills, f)

	signed := f.Quantity
	if f.Side == model.OrderSideSell {
		signed = -signed
	}

	pos, ok := l.positions[f.Symbol]
	if !ok {
		l.positions[f.Symbol] = &model.Position{
			Symbol:   f.Symbol,
			Quantity: signed,
			AvgCost:  f.Price,
			OpenedAt: f.Timestamp,
		}
		l.marks[f.Symbol] = f.Price
		return l.View(f.Timestamp)
	}

	sameDirection := (pos.Quantity > 0) == (signed > 0)
	if sameDirection {
		oldAbs := abs64(pos.Quantity)
		addAbs := abs64(signed)
		pos.AvgCost = (pos.AvgCost*float64(oldAbs) + f.Price*float64(addAbs)) / float64(oldAbs+addAbs)
		pos.Quantity += signed
	} else {
		reduced := min64(abs64(signed), abs64(pos.Quantity))
		l.bookRealized(pos, f, reduced)

		remaining := pos.Quantity + signed
		switch {
		case remaining == 0:
			delete(l.positions, f.Symbol)
		case (remaining > 0) == (pos.Quantity > 0):
			pos.Quantity = remaining
		default:
			// Flip: the surplus opens a fresh position at the fill price.
			pos.Quantity = remaining
			pos.AvgCost = f.Price
			pos.OpenedAt = f.Timestamp
		}
	}

	l.marks[f.Symbol] = f.Price
	return l.View(f.Timestamp)
}

// bookRealized records P&L for the reduced quantity net of the commission
// share attributable to that quantity.
func (l *PortfolioLedger) bookRealized(pos *model.Position, f model.Fill, reduced int64) {
	var gross float64
	if pos.Quantity > 0 {
		gross = (f.Price - pos.AvgCost) * float64(reduced)
	} else {
		gross = (pos.AvgCost - f.Price) * float64(reduced)
	}
	commissionShare := f.Commission * float64(reduced) / float64(f.Quantity)

	l.trades = append(l.trades, model.TradeLog{
		Symbol:      f.Symbol,
		Side:        f.Side,
		Quantity:    reduced,
		EntryTime:   pos.OpenedAt,
		EntryPrice:  pos.AvgCost,
		ExitTime:    f.Timestamp,
		ExitPrice:   f.Price,
		RealizedPnL: gross - commissionShare,
		ExitReason:  f.Reason,
	})
}

// View returns the current portfolio state as a snapshot without appending
// it to the equity curve. Used by the risk gate mid-tick, so each order
// observes the ledger as mutated by the orders preceding it.
func (l *PortfolioLedger) View(ts time.Time) model.PortfolioSnapshot {
	positions := make(map[string]model.Position, len(l.positions))
	marks := make(map[string]float64, len(l.marks))
	for symbol, pos := range l.positions {
		positions[symbol] = *pos
	}
	for symbol, mark := range l.marks {
		marks[symbol] = mark
	}

	equity := l.Equity()
	peak := l.peakEquity
	if equity > peak {
		peak = equity
	}

	return model.PortfolioSnapshot{
		Timestamp:  ts,
		Cash:       l.cash,
		Positions:  positions,
		Marks:      marks,
		Equity:     equity,
		PeakEquity: peak,
	}
}

// RecordSnapshot appends one snapshot for the tick and advances the running
// equity peak. Called exactly once per tick regardless of fill activity so
// the equity curve stays dense and regularly spaced.
func (l *PortfolioLedger) RecordSnapshot(ts time.Time) model.PortfolioSnapshot {
	equity := l.Equity()
	if equity > l.peakEquity {
		l.peakEquity = equity
	}
	snap := l.View(ts)
	snap.PeakEquity = l.peakEquity
	l.snapshots = append(l.snapshots, snap)
	return snap
}

// Snapshots returns the recorded equity curve.
func (l *PortfolioLedger) Snapshots() []model.PortfolioSnapshot {
	return l.snapshots
}

// Trades returns the realized trade log.
func (l *PortfolioLedger) Trades() []model.TradeLog {
	return l.trades
}

// Fills returns every fill applied during the run.
func (l *PortfolioLedger) Fills() []model.Fill {
	return l.fills
}

// OpenPositions returns copies of all open positions.
func (l *PortfolioLedger) OpenPositions() []model.Position {
	out := make([]model.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
