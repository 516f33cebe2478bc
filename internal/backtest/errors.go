package backtest

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when a strategy requests a lookback
// window longer than the history available for a symbol. The engine
// recovers by emitting no orders for that symbol on that tick.
var ErrInsufficientData = errors.New("insufficient history for requested lookback")

// DataIntegrityError marks a symbol's series as unusable: non-finite or
// non-monotonic prices. Fatal for that symbol only; the run continues for
// the remaining symbols.
type DataIntegrityError struct {
	Symbol string
	Err    error
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation for %s: %v", e.Symbol, e.Err)
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

// ConfigurationError indicates invalid run configuration. Fatal at run
// start, surfaced before any simulation step executes.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid backtest configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
