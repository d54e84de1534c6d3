package sim

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rustyeddy/arena/market"
)

// Walk drives an Engine with a seeded geometric random walk per symbol.
// The same seed always produces the same price path.
type Walk struct {
	engine *Engine
	rng    *rand.Rand
	vols   map[string]float64
	prices map[string]float64
}

// NewWalk starts each symbol at its price. vol is the per-step stddev of
// returns.
func NewWalk(e *Engine, seed int64, start map[string]float64, vol float64) *Walk {
	w := &Walk{
		engine: e,
		rng:    rand.New(rand.NewSource(seed)),
		vols:   make(map[string]float64, len(start)),
		prices: make(map[string]float64, len(start)),
	}
	for sym, p := range start {
		w.prices[sym] = p
		w.vols[sym] = vol
	}
	return w
}

// Step advances every symbol one step and pushes the marks to the engine.
func (w *Walk) Step(now time.Time) {
	syms := make([]string, 0, len(w.prices))
	for s := range w.prices {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	for _, s := range syms {
		r := w.rng.NormFloat64() * w.vols[s]
		w.prices[s] *= math.Exp(r)
		w.engine.UpdatePrice(market.Quote{Symbol: s, MarkPrice: w.prices[s], Time: now})
	}
}

func (w *Walk) Price(symbol string) float64 { return w.prices[symbol] }
