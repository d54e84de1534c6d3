package risk

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/broker"
	"github.com/rustyeddy/arena/broker/sim"
	"github.com/rustyeddy/arena/fault"
	"github.com/rustyeddy/arena/market"
	"github.com/rustyeddy/arena/order"
)

func testAgent(profile agent.ProfileName, capital float64) agent.Agent {
	return agent.Agent{
		ID:             "A1",
		OwnerID:        "u1",
		Profile:        agent.MustProfile(profile),
		Symbols:        []string{"BTC-USD"},
		InitialCapital: capital,
		Capital:        capital,
		PeakCapital:    capital,
		Status:         agent.Active,
	}
}

func flat(capital float64) broker.Account {
	return broker.Account{AgentID: "A1", Balance: capital, Capital: capital, FreeMargin: capital}
}

func quote(px float64) market.Quote {
	return market.Quote{Symbol: "BTC-USD", MarkPrice: px}
}

func buy(qty float64) order.Request {
	return order.Request{Symbol: "BTC-USD", Side: order.Buy, Type: order.Market, Quantity: qty}
}

func TestOversizedBuyIsAdjustedToTighterCap(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Moderate, 10_000)

	// 60k notional against 10k capital
	d := m.Evaluate(a, buy(600), flat(10_000), quote(100))

	require.True(t, d.Allowed())
	assert.Equal(t, Adjust, d.Verdict)
	// min(5x leverage = 50k, 10% position = 1k) of notional
	assert.InDelta(t, 1_000, d.Quantity*100, 1e-9)
	assert.NoError(t, d.Err())
}

func TestWithinCapIsApproved(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	d := m.Evaluate(testAgent(agent.Moderate, 10_000), buy(5), flat(10_000), quote(100))
	assert.Equal(t, Approve, d.Verdict)
	assert.InDelta(t, 5, d.Quantity, 1e-12)
	assert.InDelta(t, 0.05, d.ProjectedLeverage, 1e-12)
}

func TestZeroQuantityTakesVolAdjustedTarget(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Moderate, 10_000)

	// 2% of 10k at baseline vol is 200 notional, 2 units
	q := market.Quote{Symbol: "BTC-USD", MarkPrice: 100, Volatility: 0.02}
	d := m.Evaluate(a, buy(0), flat(10_000), q)
	assert.Equal(t, Approve, d.Verdict)
	assert.InDelta(t, 2, d.Quantity, 1e-12)
	assert.InDelta(t, 2, m.TargetQuantity(a, 10_000, q), 1e-12)

	// vol 4% is twice the baseline, so half that
	q.Volatility = 0.04
	d = m.Evaluate(a, buy(0), flat(10_000), q)
	assert.InDelta(t, 1, d.Quantity, 1e-12)

	// calm markets size up to the 0.5 scalar floor
	q.Volatility = 0.001
	d = m.Evaluate(a, buy(0), flat(10_000), q)
	assert.InDelta(t, 4, d.Quantity, 1e-12)
}

func TestTargetScalesWithRiskPerTrade(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	q := market.Quote{Symbol: "BTC-USD", MarkPrice: 100, Volatility: 0.02}

	cons := m.TargetQuantity(testAgent(agent.Conservative, 10_000), 10_000, q)
	mod := m.TargetQuantity(testAgent(agent.Moderate, 10_000), 10_000, q)
	agg := m.TargetQuantity(testAgent(agent.Aggressive, 10_000), 10_000, q)
	assert.InDelta(t, 1, cons, 1e-12)
	assert.InDelta(t, 2, mod, 1e-12)
	assert.InDelta(t, 3, agg, 1e-12)

	// a large risk budget never sizes past the 10% position cap
	a := testAgent(agent.Moderate, 10_000)
	a.Profile.RiskPerTrade = 0.5
	assert.InDelta(t, 10, m.TargetQuantity(a, 10_000, q), 1e-12)

	a.Profile.RiskPerTrade = 0
	assert.Zero(t, m.TargetQuantity(a, 10_000, q))
}

func TestSizeTooSmall(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Moderate, 10_000)
	acct := flat(10_000)
	acct.Positions = []agent.Position{{Symbol: "BTC-USD", Side: agent.Long, Size: 0.0095, EntryPrice: 100_000, MarkPrice: 100_000}}

	d := m.Evaluate(a, buy(1), acct, quote(100_000))
	assert.Equal(t, Reject, d.Verdict)
	assert.Equal(t, "SizeTooSmall", d.Reason())
	assert.ErrorIs(t, d.Err(), fault.ErrSizeTooSmall)
	assert.Zero(t, d.Quantity)
}

func TestLeverageExceeded(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Aggressive, 10_000)
	acct := flat(10_000)
	acct.Positions = []agent.Position{{Symbol: "ETH-USD", Side: agent.Long, Size: 99, EntryPrice: 1_000, MarkPrice: 1_000}}

	d := m.Evaluate(a, buy(15), acct, quote(100))
	assert.Equal(t, Reject, d.Verdict)
	assert.ErrorIs(t, d.Err(), fault.ErrLeverageExceeded)
	assert.Equal(t, fault.KindRisk, fault.KindOf(d.Err()))
}

func TestInsufficientMarginRatio(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Aggressive, 10_000)
	acct := flat(10_000)
	acct.Positions = []agent.Position{{Symbol: "ETH-USD", Side: agent.Long, Size: 50, EntryPrice: 1_000, MarkPrice: 1_000}}

	// 5.1x is inside the 10x leverage cap but leaves 19.6% collateral
	d := m.Evaluate(a, buy(10), acct, quote(100))
	assert.Equal(t, Reject, d.Verdict)
	assert.ErrorIs(t, d.Err(), fault.ErrInsufficientMargin)
	assert.InDelta(t, 10_000.0/51_000, d.MarginRatio, 1e-12)
}

func TestInsufficientFreeMargin(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Moderate, 10_000)
	acct := broker.Account{Capital: 10_000, MarginUsed: 9_900, FreeMargin: 100}

	d := m.Evaluate(a, buy(10), acct, quote(100))
	assert.ErrorIs(t, d.Err(), fault.ErrInsufficientMargin)
}

func TestReducingOrdersSkipExposureChecks(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Conservative, 10_000)
	acct := flat(10_000)
	// far over every limit after a crash in capital
	acct.Positions = []agent.Position{{Symbol: "BTC-USD", Side: agent.Long, Size: 500, EntryPrice: 100, MarkPrice: 100}}

	sell := order.Request{Symbol: "BTC-USD", Side: order.Sell, Type: order.Market, Quantity: 200}
	d := m.Evaluate(a, sell, acct, quote(100))
	assert.Equal(t, Approve, d.Verdict)
	assert.InDelta(t, 200, d.Quantity, 1e-12)

	// a buy on top is refused outright
	d = m.Evaluate(a, buy(1), acct, quote(100))
	assert.ErrorIs(t, d.Err(), fault.ErrSizeTooSmall)
}

func TestSellCanFlipUpToCap(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Moderate, 10_000)
	acct := flat(10_000)
	acct.Positions = []agent.Position{{Symbol: "BTC-USD", Side: agent.Long, Size: 4, EntryPrice: 100, MarkPrice: 100}}

	sell := order.Request{Symbol: "BTC-USD", Side: order.Sell, Type: order.Market, Quantity: 100}
	d := m.Evaluate(a, sell, acct, quote(100))
	assert.Equal(t, Adjust, d.Verdict)
	// close 4 and open 10 short
	assert.InDelta(t, 14, d.Quantity, 1e-12)
}

func TestValidationRejects(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Moderate, 10_000)

	d := m.Evaluate(a, buy(-1), flat(10_000), quote(100))
	assert.Equal(t, Reject, d.Verdict)
	assert.Equal(t, fault.KindValidation, fault.KindOf(d.Err()))

	d = m.Evaluate(a, buy(1), flat(10_000), quote(0))
	assert.Equal(t, fault.KindValidation, fault.KindOf(d.Err()))
}

func TestEvaluateIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConfig())
	a := testAgent(agent.Moderate, 10_000)
	acct := flat(10_000)
	acct.Positions = []agent.Position{{Symbol: "BTC-USD", Side: agent.Long, Size: 3, EntryPrice: 90, MarkPrice: 100}}

	for _, req := range []order.Request{buy(600), buy(0), buy(2), buy(-3)} {
		first := m.Evaluate(a, req, acct, quote(100))
		second := m.Evaluate(a, req, acct, quote(100))
		assert.Equal(t, first, second)
	}
	assert.Len(t, acct.Positions, 1)
	assert.InDelta(t, 3, acct.Positions[0].Size, 1e-12)
}

// Any sequence of orders that passes Evaluate keeps leverage within the
// profile limit while prices hold still. Sixty symbols give every profile
// enough per-symbol room to run into its book-wide limit.
func TestLeverageNeverExceedsMaxAfterAppliedOrders(t *testing.T) {
	t.Parallel()

	symbols := make([]string, 60)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%02d", i)
	}
	// Default margin ratio 0.20 binds before the aggressive 10x leverage.
	binding := map[agent.ProfileName]string{
		agent.Conservative: fault.ErrLeverageExceeded.Code,
		agent.Moderate:     fault.ErrLeverageExceeded.Code,
		agent.Aggressive:   fault.ErrInsufficientMargin.Code,
	}

	for _, profile := range []agent.ProfileName{agent.Conservative, agent.Moderate, agent.Aggressive} {
		rng := rand.New(rand.NewSource(7))
		e := sim.NewEngine(sim.Config{}, nil)
		e.OpenAccount("A1", 10_000)
		for i, s := range symbols {
			e.UpdatePrice(market.Quote{Symbol: s, MarkPrice: float64(10 * (i + 1)), Time: time.Now()})
		}

		m := NewManager(DefaultConfig())
		a := testAgent(profile, 10_000)
		ctx := context.Background()
		rejected := make(map[string]int)
		var peak float64

		for i := 0; i < 1_000; i++ {
			sym := symbols[rng.Intn(len(symbols))]
			side := order.Buy
			if rng.Intn(4) == 0 {
				side = order.Sell
			}
			req := order.Request{Symbol: sym, Side: side, Type: order.Market, Quantity: rng.Float64() * 200}

			acct, err := e.AccountState(ctx, "A1")
			require.NoError(t, err)
			q, err := e.Quotes().Get(sym)
			require.NoError(t, err)

			d := m.Evaluate(a, req, acct, q)
			if !d.Allowed() {
				rejected[d.Reason()]++
				continue
			}
			req.Quantity = d.Quantity
			_, err = e.Submit(ctx, broker.Submission{OrderID: fmt.Sprintf("%s-%d", profile, i), AgentID: "A1", Request: req})
			require.NoError(t, err)

			acct, err = e.AccountState(ctx, "A1")
			require.NoError(t, err)
			lev := Leverage(acct.Positions, acct.Capital)
			peak = math.Max(peak, lev)
			assert.LessOrEqual(t, lev, a.Profile.MaxLeverage+1e-9, "profile %s step %d", profile, i)
		}

		assert.Positive(t, rejected[binding[profile]], "profile %s never hit %s: %v", profile, binding[profile], rejected)
		assert.Greater(t, peak, 0.5*math.Min(a.Profile.MaxLeverage, 1/DefaultConfig().MinMarginRatio), "profile %s", profile)
	}
}
