package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/arena/fault"
	"github.com/rustyeddy/arena/journal"
	"github.com/rustyeddy/arena/order"
)

func testAgent(id string) Agent {
	return Agent{
		ID:             id,
		OwnerID:        "owner",
		Profile:        MustProfile(Moderate),
		Symbols:        []string{"BTC-USD"},
		InitialCapital: 10_000,
	}
}

func TestCanonicalProfiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     ProfileName
		lev, pos float64
		dd       float64
	}{
		{Conservative, 2, 0.05, 0.15},
		{Moderate, 5, 0.10, 0.30},
		{Aggressive, 10, 0.20, 0.50},
	}
	for _, tt := range tests {
		p, err := Profile(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.lev, p.MaxLeverage)
		assert.Equal(t, tt.pos, p.MaxPositionPct)
		assert.Equal(t, tt.dd, p.MaxDrawdownPct)
		assert.NoError(t, p.Validate())
	}

	_, err := Profile("yolo")
	assert.ErrorIs(t, err, fault.ErrValidation)
}

func TestAgentValidate(t *testing.T) {
	t.Parallel()

	a := testAgent("a1")
	assert.NoError(t, a.Validate())

	a.InitialCapital = 0
	assert.ErrorIs(t, a.Validate(), fault.ErrValidation)

	a = testAgent("a1")
	a.Symbols = nil
	assert.Error(t, a.Validate())
}

func TestDrawdown(t *testing.T) {
	t.Parallel()

	a := testAgent("a1")
	a.MarkCapital(10_000)
	a.MarkCapital(12_000)
	a.MarkCapital(9_000)
	assert.Equal(t, 12_000.0, a.PeakCapital)
	assert.InDelta(t, 0.25, a.Drawdown(), 1e-12)
}

func TestBookApply(t *testing.T) {
	t.Parallel()

	b := make(Book)
	assert.Zero(t, b.Apply("X", order.Buy, 2, 100))
	assert.Zero(t, b.Apply("X", order.Buy, 2, 110))
	assert.InDelta(t, 105, b["X"].EntryPrice, 1e-12)
	assert.InDelta(t, 4, b.Signed("X"), 1e-12)

	// partial close realizes on the closed quantity only
	assert.InDelta(t, 15.0, b.Apply("X", order.Sell, 1, 120), 1e-9)
	assert.InDelta(t, 3, b["X"].Size, 1e-12)

	// flip through zero
	assert.InDelta(t, -15.0, b.Apply("X", order.Sell, 5, 100), 1e-9)
	assert.Equal(t, Short, b["X"].Side)
	assert.InDelta(t, 2, b["X"].Size, 1e-12)
	assert.InDelta(t, -2, b.Signed("X"), 1e-12)

	// short profits when price falls
	assert.InDelta(t, 20.0, b.Apply("X", order.Buy, 2, 90), 1e-9)
	_, ok := b["X"]
	assert.False(t, ok)
}

func TestBookNotionalAndUnrealized(t *testing.T) {
	t.Parallel()

	b := make(Book)
	b.Apply("A", order.Buy, 1, 100)
	b.Apply("B", order.Sell, 2, 50)
	b.Mark("A", 110)
	b.Mark("B", 40)

	assert.InDelta(t, 110+80, b.Notional(), 1e-9)
	assert.InDelta(t, 10+20, b.UnrealizedPnL(), 1e-9)
	assert.Equal(t, []string{"A", "B"}, []string{b.List()[0].Symbol, b.List()[1].Symbol})
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h, err := r.Create(testAgent("a1"))
	require.NoError(t, err)
	a := h.Agent()
	assert.Equal(t, Active, a.Status)
	assert.Equal(t, 10_000.0, a.Capital)
	assert.Equal(t, 10_000.0, a.PeakCapital)

	_, err = r.Create(testAgent("a1"))
	assert.ErrorIs(t, err, fault.ErrValidation)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, fault.ErrAgentNotFound)

	require.NoError(t, r.Pause("a1"))
	assert.Equal(t, Paused, h.Status())
	require.NoError(t, r.Resume("a1"))
	assert.Equal(t, Active, h.Status())

	require.NoError(t, h.Do(func(s *State) error {
		s.Agent.Status = Liquidated
		return nil
	}))
	assert.ErrorIs(t, r.Resume("a1"), fault.ErrAgentTerminal)

	r.Close()
	_, err = r.Create(testAgent("a2"))
	assert.Error(t, err)
}

func TestRegistryListSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		_, err := r.Create(testAgent(id))
		require.NoError(t, err)
	}
	var ids []string
	for _, h := range r.List() {
		ids = append(ids, h.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestAppendTradeOrdering(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h, err := r.Create(testAgent("a1"))
	require.NoError(t, err)

	t1 := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = h.Do(func(s *State) error {
				s.AppendTrade(journal.TradeRecord{Time: t1.Add(time.Duration(i%3) * -time.Second)})
				return nil
			})
		}(i)
	}
	wg.Wait()

	trades := h.View().Trades
	require.Len(t, trades, 20)
	for i := 1; i < len(trades); i++ {
		assert.Equal(t, trades[i-1].Seq+1, trades[i].Seq)
		assert.False(t, trades[i].Time.Before(trades[i-1].Time))
		assert.Equal(t, "a1", trades[i].AgentID)
	}
}

func TestViewIsACopy(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h, err := r.Create(testAgent("a1"))
	require.NoError(t, err)
	require.NoError(t, h.Do(func(s *State) error {
		s.Positions.Apply("BTC-USD", order.Buy, 1, 100)
		return nil
	}))

	v := h.View()
	v.Positions["BTC-USD"].Size = 99
	assert.InDelta(t, 1, h.View().Positions["BTC-USD"].Size, 1e-12)
}

func TestRecordRestore(t *testing.T) {
	a := Agent{
		ID: "a1", OwnerID: "o", Name: "one", Profile: MustProfile(Moderate),
		Symbols: []string{"BTC"}, Decider: "rule", InitialCapital: 10_000,
		Capital: 8_000, PeakCapital: 12_000, Status: Liquidated,
	}
	rec := a.Record()
	assert.Equal(t, "moderate", rec.Profile)
	assert.Equal(t, "liquidated", rec.Status)

	fresh := Agent{ID: "a1", InitialCapital: 10_000}
	fresh.Restore(rec)
	assert.Equal(t, 8_000.0, fresh.Capital)
	assert.Equal(t, 12_000.0, fresh.PeakCapital)
	assert.Equal(t, Liquidated, fresh.Status)

	other := Agent{ID: "a2"}
	other.Restore(rec)
	assert.Zero(t, other.Capital)
}
