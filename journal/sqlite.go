package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

var (
	_ Journal    = (*SQLite)(nil)
	_ AgentStore = (*SQLite)(nil)
)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// one writer keeps appends strictly ordered
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, seq, agent_id, order_id, symbol, side, quantity, price, fee, realized_pnl, closing, time, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, int64(t.Seq), t.AgentID, t.OrderID, t.Symbol, string(t.Side),
		t.Quantity, t.Price, t.Fee, t.RealizedPnL, t.Closing, t.Time.UTC(), t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(agent_id, time, capital, balance, margin_used)
		VALUES (?, ?, ?, ?, ?)`,
		e.AgentID, e.Time.UTC(), e.Capital, e.Balance, e.MarginUsed,
	)
	return err
}

func (j *SQLite) RecordOrder(o OrderRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO order_events
		(order_id, agent_id, symbol, side, type, quantity, limit_price, from_status, to_status, reason, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID, o.AgentID, o.Symbol, string(o.Side), string(o.Type),
		o.Quantity, o.LimitPrice, o.From, o.To, o.Reason, o.Time.UTC(),
	)
	return err
}

func (j *SQLite) RecordPerformance(p PerformanceRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO performance
		(agent_id, as_of, sharpe, sortino, max_drawdown, current_drawdown, volatility,
		 total_return, win_rate, profit_factor, total_trades, winning_trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AgentID, p.AsOf.UTC(), p.SharpeRatio, p.SortinoRatio, p.MaxDrawdown, p.CurrentDrawdown,
		p.Volatility, p.TotalReturn, p.WinRate, p.ProfitFactor, p.TotalTrades, p.WinningTrades,
	)
	return err
}

// SaveAgent upserts an agent record.
func (j *SQLite) SaveAgent(ctx context.Context, a AgentRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO agents
		(agent_id, owner_id, name, profile, symbols, decider, initial_capital, capital, peak_capital, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			capital = excluded.capital,
			peak_capital = excluded.peak_capital,
			status = excluded.status`,
		a.ID, a.OwnerID, a.Name, a.Profile, strings.Join(a.Symbols, ","), a.Decider,
		a.InitialCapital, a.Capital, a.PeakCapital, a.Status, a.CreatedAt.UTC(),
	)
	return err
}

func (j *SQLite) LoadAgents(ctx context.Context) ([]AgentRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT agent_id, owner_id, name, profile, symbols, decider, initial_capital, capital, peak_capital, status, created_at
		FROM agents
		ORDER BY agent_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentRecord
	for rows.Next() {
		var (
			rec     AgentRecord
			symbols string
		)
		if err := rows.Scan(
			&rec.ID, &rec.OwnerID, &rec.Name, &rec.Profile, &symbols, &rec.Decider,
			&rec.InitialCapital, &rec.Capital, &rec.PeakCapital, &rec.Status, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if symbols != "" {
			rec.Symbols = strings.Split(symbols, ",")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
