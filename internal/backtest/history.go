package backtest

import (
	"sort"
	"time"

	"golang-backtest/internal/model"
)

// BarSource supplies the ordered, gap-free bar series per symbol covering
// [start, end]. The engine treats the data as already normalized (splits,
// dividends); normalization is an external collaborator's responsibility.
type BarSource interface {
	Bars(start, end time.Time) (map[string][]model.Bar, error)
}

// StaticBarSource is a BarSource over pre-loaded in-memory series.
type StaticBarSource struct {
	series map[string][]model.Bar
}

func NewStaticBarSource(series map[string][]model.Bar) *StaticBarSource {
	return &StaticBarSource{series: series}
}

func (s *StaticBarSource) Bars(start, end time.Time) (map[string][]model.Bar, error) {
	out := make(map[string][]model.Bar, len(s.series))
	for symbol, bars := range s.series {
		var filtered []model.Bar
		for _, b := range bars {
			if b.Timestamp.Before(start) || b.Timestamp.After(end) {
				continue
			}
			filtered = append(filtered, b)
		}
		if len(filtered) > 0 {
			out[symbol] = filtered
		}
	}
	return out, nil
}

// History holds the full bar series for every symbol in the run, indexed
// for advancing a single shared time cursor.
type History struct {
	series  map[string][]model.Bar
	visible map[string]int // bars[:visible[sym]] are at or before the cursor
	cursor  time.Time
}

func newHistory(series map[string][]model.Bar) *History {
	visible := make(map[string]int, len(series))
	for symbol := range series {
		visible[symbol] = 0
	}
	return &History{series: series, visible: visible}
}

// timeline returns the sorted union of all bar timestamps across symbols.
func (h *History) timeline() []time.Time {
	seen := make(map[int64]struct{})
	var ticks []time.Time
	for _, bars := range h.series {
		for _, b := range bars {
			key := b.Timestamp.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			ticks = append(ticks, b.Timestamp)
		}
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Before(ticks[j]) })
	return ticks
}

// advance moves the shared cursor to ts and updates the visible bound for
// every symbol. Bars with timestamp > ts are never exposed.
func (h *History) advance(ts time.Time) {
	h.cursor = ts
	for symbol, bars := range h.series {
		i := h.visible[symbol]
		for i < len(bars) && !bars[i].Timestamp.After(ts) {
			i++
		}
		h.visible[symbol] = i
	}
}

// barAt returns the bar for symbol exactly at the current cursor, if any.
func (h *History) barAt(symbol string) (model.Bar, bool) {
	bars := h.series[symbol]
	i := h.visible[symbol]
	if i == 0 {
		return model.Bar{}, false
	}
	last := bars[i-1]
	if !last.Timestamp.Equal(h.cursor) {
		return model.Bar{}, false
	}
	return last, true
}

// Window returns the strategy-facing view bounded to the current cursor.
func (h *History) window() *Window {
	return &Window{history: h, at: h.cursor}
}

// Window is the visible-history view handed to strategies and the risk
// gate: all bars with timestamp <= the current tick, per symbol. Accessors
// return copies so callers cannot retain references into engine state.
type Window struct {
	history *History
	at      time.Time
}

// At returns the window's simulation timestamp.
func (w *Window) At() time.Time {
	return w.at
}

// Symbols returns the symbols with at least one visible bar, sorted for
// deterministic iteration.
func (w *Window) Symbols() []string {
	var symbols []string
	for symbol := range w.history.series {
		if w.history.visible[symbol] > 0 {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Bars returns a copy of every visible bar for symbol, oldest first.
func (w *Window) Bars(symbol string) []model.Bar {
	n := w.history.visible[symbol]
	if n == 0 {
		return nil
	}
	out := make([]model.Bar, n)
	copy(out, w.history.series[symbol][:n])
	return out
}

// Last returns a copy of the trailing n visible bars for symbol.
// Returns ErrInsufficientData when fewer than n bars are visible.
func (w *Window) Last(symbol string, n int) ([]model.Bar, error) {
	visible := w.history.visible[symbol]
	if visible < n {
		return nil, ErrInsufficientData
	}
	out := make([]model.Bar, n)
	copy(out, w.history.series[symbol][visible-n:visible])
	return out, nil
}

// Latest returns a copy of the most recent visible bar for symbol.
func (w *Window) Latest(symbol string) (model.Bar, bool) {
	visible := w.history.visible[symbol]
	if visible == 0 {
		return model.Bar{}, false
	}
	return w.history.series[symbol][visible-1], true
}

// Closes returns the trailing n visible close prices for symbol.
func (w *Window) Closes(symbol string, n int) ([]float64, error) {
	bars, err := w.Last(symbol, n)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes, nil
}
