package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/arena/journal"
)

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func curve(vals ...float64) []journal.EquitySnapshot {
	out := make([]journal.EquitySnapshot, len(vals))
	for i, v := range vals {
		out[i] = journal.EquitySnapshot{AgentID: "A1", Time: t0.Add(time.Duration(i) * time.Hour), Capital: v}
	}
	return out
}

func closing(pnls ...float64) []journal.TradeRecord {
	out := make([]journal.TradeRecord, len(pnls))
	for i, p := range pnls {
		out[i] = journal.TradeRecord{Seq: uint64(i + 1), RealizedPnL: p, Closing: true}
	}
	return out
}

func TestComputeRatios(t *testing.T) {
	t.Parallel()

	h := History{
		AgentID:        "A1",
		InitialCapital: 100,
		CurrentCapital: 108.9,
		Equity:         curve(110, 99, 108.9),
		AsOf:           t0,
	}
	s := Compute(DefaultConfig(), h)

	assert.InDelta(t, 0.089, s.TotalReturn, 1e-12)
	wantSharpe := (0.1 / 3) / math.Sqrt(0.08/9) * math.Sqrt(252)
	assert.InDelta(t, wantSharpe, s.SharpeRatio, 1e-9)
	// a single losing period has no downside deviation
	assert.Zero(t, s.SortinoRatio)
	assert.InDelta(t, 0.1, s.MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.01, s.CurrentDrawdown, 1e-12)
	assert.InDelta(t, 2.0/3, s.Consistency, 1e-12)
	assert.Greater(t, s.Volatility, 0.0)
	assert.Equal(t, t0, s.AsOf)
}

func TestComputeSortino(t *testing.T) {
	t.Parallel()

	h := History{InitialCapital: 100, CurrentCapital: 89.775, Equity: curve(95, 99.75, 89.775)}
	s := Compute(DefaultConfig(), h)
	// returns: -0.05, +0.05, -0.1
	mean := (-0.05 + 0.05 - 0.1) / 3
	want := mean / 0.025 * math.Sqrt(252)
	assert.InDelta(t, want, s.SortinoRatio, 1e-9)
}

func TestComputeTrades(t *testing.T) {
	t.Parallel()

	trades := closing(50, -25, 25)
	trades = append(trades, journal.TradeRecord{Seq: 4, Closing: false})

	s := Compute(DefaultConfig(), History{InitialCapital: 1000, CurrentCapital: 1050, Trades: trades})
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.InDelta(t, 2.0/3, s.WinRate, 1e-12)
	assert.InDelta(t, 3, s.ProfitFactor, 1e-12)
	assert.InDelta(t, 0.05, s.TotalReturn, 1e-12)
}

func TestComputeNoLossesIsFinite(t *testing.T) {
	t.Parallel()

	s := Compute(DefaultConfig(), History{InitialCapital: 1000, CurrentCapital: 1010, Trades: closing(10)})
	assert.Equal(t, 999.0, s.ProfitFactor)
	assert.False(t, math.IsInf(s.ProfitFactor, 0))
	assert.Equal(t, 1.0, s.WinRate)
}

func TestComputeEmptyHistory(t *testing.T) {
	t.Parallel()

	s := Compute(DefaultConfig(), History{AgentID: "A1"})
	assert.Zero(t, s.TotalReturn)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.ProfitFactor)
	assert.Zero(t, s.SharpeRatio)
	assert.Zero(t, s.SortinoRatio)
	assert.Zero(t, s.MaxDrawdown)

	// flat equity has zero stddev
	s = Compute(DefaultConfig(), History{InitialCapital: 100, CurrentCapital: 100, Equity: curve(100, 100, 100)})
	assert.Zero(t, s.SharpeRatio)
	assert.Zero(t, s.Volatility)
}

func TestWinRateBounds(t *testing.T) {
	t.Parallel()

	for _, pnls := range [][]float64{{}, {1}, {-1}, {1, -1, 0, 2, -3}} {
		s := Compute(DefaultConfig(), History{InitialCapital: 1, CurrentCapital: 1, Trades: closing(pnls...)})
		assert.GreaterOrEqual(t, s.WinRate, 0.0)
		assert.LessOrEqual(t, s.WinRate, 1.0)
	}
}

func TestVolatilityDecaysWhenIdle(t *testing.T) {
	t.Parallel()

	h := History{InitialCapital: 100, CurrentCapital: 100, Equity: curve(105, 100)}
	busy := Compute(DefaultConfig(), h)

	h.Equity = curve(105, 100, 100, 100, 100, 100, 100)
	idle := Compute(DefaultConfig(), h)
	assert.Less(t, idle.Volatility, busy.Volatility)
}

func TestComputeIsDeterministic(t *testing.T) {
	t.Parallel()

	h := History{
		AgentID:        "A1",
		InitialCapital: 100,
		CurrentCapital: 97,
		Trades:         closing(3, -4, 1),
		Equity:         curve(103, 99, 101, 97),
		AsOf:           t0,
	}
	assert.Equal(t, Compute(DefaultConfig(), h), Compute(DefaultConfig(), h))
}

func TestEngineCachesLatest(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultConfig())
	_, ok := e.Latest("A1")
	assert.False(t, ok)

	e.Recompute(History{AgentID: "B1", InitialCapital: 100, CurrentCapital: 90})
	e.Recompute(History{AgentID: "A1", InitialCapital: 100, CurrentCapital: 110})
	s, ok := e.Latest("A1")
	assert.True(t, ok)
	assert.InDelta(t, 0.1, s.TotalReturn, 1e-12)

	all := e.All()
	assert.Len(t, all, 2)
	assert.Equal(t, "A1", all[0].AgentID)
	assert.Equal(t, "A1", s.Record().AgentID)
}
