package strategy

import (
	"fmt"
	"sort"

	"golang-backtest/internal/backtest"
	"golang-backtest/pkg/logger"
)

// Params carries per-strategy numeric tuning knobs from the request.
// Unknown keys are ignored; missing keys fall back to strategy defaults.
type Params map[string]float64

func (p Params) intOr(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

func (p Params) floatOr(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func (p Params) int64Or(key string, def int64) int64 {
	if v, ok := p[key]; ok {
		return int64(v)
	}
	return def
}

// Factory builds a fresh strategy instance for one run. Sweeps call the
// factory once per variant so runs never share strategy state.
type Factory func(log *logger.Logger, params Params) (backtest.Strategy, error)

// Registry maps strategy names to factories. Variants are selected here at
// configuration time, never via runtime type inspection.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with all built-in strategies registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(StrategySMACross, NewSMACross)
	r.Register(StrategyMomentum, NewMomentum)
	return r
}

func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Create builds a strategy by name.
func (r *Registry) Create(name string, log *logger.Logger, params Params) (backtest.Strategy, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q, available: %v", name, r.Names())
	}
	return factory(log, params)
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
