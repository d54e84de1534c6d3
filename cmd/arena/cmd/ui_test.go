package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/competition"
	"github.com/rustyeddy/arena/config"
	"github.com/rustyeddy/arena/journal"
	"github.com/rustyeddy/arena/order"
)

func TestRenderRanking(t *testing.T) {
	reg := agent.NewRegistry()
	_, err := reg.Create(agent.Agent{
		ID:             "steady",
		OwnerID:        "house",
		Profile:        agent.MustProfile(agent.Conservative),
		Symbols:        []string{"BTC-USDT"},
		InitialCapital: 10_000,
	})
	require.NoError(t, err)

	c := competition.Competition{Name: "spring cup", Kind: competition.Tournament, Status: competition.Closed, PrizePool: decimal.NewFromInt(1000)}
	r := competition.Ranking{
		Final: true,
		Entries: []competition.Entry{
			{Rank: 1, AgentID: "steady", TotalReturn: 0.12, Payout: decimal.NewFromInt(600)},
			{Rank: 2, AgentID: "gone", TotalReturn: -0.3, Eliminated: true, Payout: decimal.NewFromInt(400)},
		},
	}
	out := renderRanking(c, r, reg)
	assert.Contains(t, out, "spring cup")
	assert.Contains(t, out, "steady")
	assert.Contains(t, out, "+12.00%")
	assert.Contains(t, out, "eliminated")
	assert.Contains(t, out, "$600.00")
	assert.NotContains(t, out, "Tier")
}

func TestRenderTrades(t *testing.T) {
	out := renderTrades([]journal.TradeRecord{
		{Seq: 1, Time: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), Symbol: "BTC-USDT", Side: order.Buy, Quantity: 0.5, Price: 65_000, Reason: "ema cross"},
	})
	assert.Contains(t, out, "BTC-USDT")
	assert.Contains(t, out, "65000.00")
	assert.Contains(t, out, "ema cross")
}

func TestResolverNeedsKeyForLLM(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = ""
	r := resolver(context.Background(), cfg)

	a, err := cfg.Agents[0].Agent()
	require.NoError(t, err)
	d, err := r.Resolve(a)
	require.NoError(t, err)
	assert.NotNil(t, d)

	a.Decider = "llm"
	_, err = r.Resolve(a)
	assert.ErrorContains(t, err, "ARENA_LLM_API_KEY")
}
