package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/arena/order"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

var ts = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	for _, table := range []string{"trades", "equity", "order_events", "performance", "agents"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteTradesRoundTrip(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	recs := []TradeRecord{
		{ID: "T1", Seq: 1, AgentID: "A1", OrderID: "O1", Symbol: "BTC-USD", Side: order.Buy, Quantity: 0.5, Price: 40000, Fee: 2, Time: ts},
		{ID: "T2", Seq: 2, AgentID: "A1", OrderID: "O2", Symbol: "BTC-USD", Side: order.Sell, Quantity: 0.5, Price: 41000, Fee: 2, RealizedPnL: 500, Closing: true, Time: ts.Add(time.Minute), Reason: "take profit"},
		{ID: "T3", Seq: 1, AgentID: "A2", OrderID: "O3", Symbol: "ETH-USD", Side: order.Buy, Quantity: 1, Price: 2000, Time: ts},
	}
	for _, r := range recs {
		require.NoError(t, j.RecordTrade(r))
	}
	require.NoError(t, j.Close())

	j2, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j2.Close() })

	got, err := j2.ListTrades(context.Background(), "A1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "T1", got[0].ID)
	assert.Equal(t, order.Sell, got[1].Side)
	assert.True(t, got[1].Closing)
	assert.InDelta(t, 500, got[1].RealizedPnL, 1e-9)
	assert.Equal(t, uint64(2), got[1].Seq)
	assert.True(t, got[1].Time.Equal(ts.Add(time.Minute)))

	one, err := j2.GetTrade(context.Background(), "T3")
	require.NoError(t, err)
	assert.Equal(t, "A2", one.AgentID)

	_, err = j2.GetTrade(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestSQLiteDuplicateTradeRejected(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	rec := TradeRecord{ID: "T1", Seq: 1, AgentID: "A1", Symbol: "X", Side: order.Buy, Quantity: 1, Price: 1, Time: ts}
	require.NoError(t, j.RecordTrade(rec))
	assert.Error(t, j.RecordTrade(rec))
}

func TestSQLiteEquityAndPerformance(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })
	ctx := context.Background()

	require.NoError(t, j.RecordEquity(EquitySnapshot{AgentID: "A1", Time: ts.Add(time.Minute), Capital: 10100, Balance: 10000}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{AgentID: "A1", Time: ts, Capital: 10000, Balance: 10000}))

	eq, err := j.ListEquity(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, eq, 2)
	assert.InDelta(t, 10000, eq[0].Capital, 1e-9)

	require.NoError(t, j.RecordPerformance(PerformanceRecord{AgentID: "A1", AsOf: ts, TotalReturn: 0.01}))
	require.NoError(t, j.RecordPerformance(PerformanceRecord{AgentID: "A1", AsOf: ts.Add(time.Hour), TotalReturn: 0.02, TotalTrades: 3}))

	p, err := j.LatestPerformance(ctx, "A1")
	require.NoError(t, err)
	assert.InDelta(t, 0.02, p.TotalReturn, 1e-12)
	assert.Equal(t, 3, p.TotalTrades)

	_, err = j.LatestPerformance(ctx, "A9")
	assert.ErrorContains(t, err, "not found")
}

func TestSQLiteOrderEvents(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	o := order.New("O1", "A1", order.Request{Symbol: "BTC-USD", Side: order.Buy, Type: order.Market, Quantity: 1}, ts)
	require.NoError(t, o.Approve(1, ts, ""))
	require.NoError(t, j.RecordOrder(OrderRecordFrom(o)))
	require.NoError(t, o.Transition(order.Submitted, ts.Add(time.Second), ""))
	require.NoError(t, j.RecordOrder(OrderRecordFrom(o)))

	evs, err := j.ListOrderEvents(context.Background(), "A1")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "Proposed", evs[0].From)
	assert.Equal(t, "RiskApproved", evs[0].To)
	assert.Equal(t, "Submitted", evs[1].To)
	assert.Equal(t, order.Market, evs[1].Type)
}

func TestSQLiteAgentsUpsert(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })
	ctx := context.Background()

	a := AgentRecord{
		ID: "A1", OwnerID: "u1", Name: "alpha", Profile: "moderate",
		Symbols: []string{"BTC-USD", "ETH-USD"}, Decider: "rule",
		InitialCapital: 10000, Capital: 10000, PeakCapital: 10000, Status: "active", CreatedAt: ts,
	}
	require.NoError(t, j.SaveAgent(ctx, a))

	a.Capital = 9000
	a.Status = "paused"
	require.NoError(t, j.SaveAgent(ctx, a))

	got, err := j.LoadAgents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, got[0].Symbols)
	assert.InDelta(t, 9000, got[0].Capital, 1e-9)
	assert.Equal(t, "paused", got[0].Status)
}
