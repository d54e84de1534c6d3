// Package journal is the append-only ledger of trades, order transitions,
// equity readings and performance snapshots.
package journal

import (
	"context"
	"time"

	"github.com/rustyeddy/arena/order"
)

// TradeRecord is one execution against an agent's account. Records are
// never edited after they are appended.
type TradeRecord struct {
	ID          string
	Seq         uint64
	AgentID     string
	OrderID     string
	Symbol      string
	Side        order.Side
	Quantity    float64
	Price       float64
	Fee         float64
	RealizedPnL float64
	// Closing is set when the fill reduced an existing position.
	Closing bool
	Time    time.Time
	Reason  string
}

type EquitySnapshot struct {
	AgentID    string
	Time       time.Time
	Capital    float64
	Balance    float64
	MarginUsed float64
}

// OrderRecord is one lifecycle transition of one order.
type OrderRecord struct {
	OrderID    string
	AgentID    string
	Symbol     string
	Side       order.Side
	Type       order.Type
	Quantity   float64
	LimitPrice float64
	From       string
	To         string
	Reason     string
	Time       time.Time
}

// OrderRecordFrom renders the most recent transition of o.
func OrderRecordFrom(o *order.Order) OrderRecord {
	rec := OrderRecord{
		OrderID:    o.ID,
		AgentID:    o.AgentID,
		Symbol:     o.Request.Symbol,
		Side:       o.Request.Side,
		Type:       o.Request.Type,
		Quantity:   o.Request.Quantity,
		LimitPrice: o.Request.LimitPrice,
		To:         o.Status.String(),
		Reason:     o.Reason,
		Time:       o.CreatedAt,
	}
	if n := len(o.Transitions); n > 0 {
		tr := o.Transitions[n-1]
		rec.From = tr.From.String()
		rec.Reason = tr.Reason
		rec.Time = tr.At
	}
	return rec
}

type PerformanceRecord struct {
	AgentID         string
	AsOf            time.Time
	SharpeRatio     float64
	SortinoRatio    float64
	MaxDrawdown     float64
	CurrentDrawdown float64
	Volatility      float64
	TotalReturn     float64
	WinRate         float64
	ProfitFactor    float64
	TotalTrades     int
	WinningTrades   int
}

// AgentRecord is the persisted form of an agent, used to restore the
// arena at process start.
type AgentRecord struct {
	ID             string
	OwnerID        string
	Name           string
	Profile        string
	Symbols        []string
	Decider        string
	InitialCapital float64
	Capital        float64
	PeakCapital    float64
	Status         string
	CreatedAt      time.Time
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordOrder(OrderRecord) error
	RecordPerformance(PerformanceRecord) error
	Close() error
}

// AgentStore is implemented by backends that can persist agent records.
type AgentStore interface {
	SaveAgent(ctx context.Context, a AgentRecord) error
	LoadAgents(ctx context.Context) ([]AgentRecord, error)
}

// Discard drops every record.
var Discard Journal = discard{}

type discard struct{}

func (discard) RecordTrade(TradeRecord) error             { return nil }
func (discard) RecordEquity(EquitySnapshot) error         { return nil }
func (discard) RecordOrder(OrderRecord) error             { return nil }
func (discard) RecordPerformance(PerformanceRecord) error { return nil }
func (discard) Close() error                              { return nil }
