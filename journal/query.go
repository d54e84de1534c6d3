package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rustyeddy/arena/order"
)

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(ctx context.Context, tradeID string) (TradeRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT trade_id, seq, agent_id, order_id, symbol, side, quantity, price, fee, realized_pnl, closing, time, reason
		FROM trades
		WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns an agent's trades in sequence order.
func (j *SQLite) ListTrades(ctx context.Context, agentID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, seq, agent_id, order_id, symbol, side, quantity, price, fee, realized_pnl, closing, time, reason
		FROM trades
		WHERE agent_id = ?
		ORDER BY seq ASC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns an agent's equity curve in time order.
func (j *SQLite) ListEquity(ctx context.Context, agentID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT agent_id, time, capital, balance, margin_used
		FROM equity
		WHERE agent_id = ?
		ORDER BY time ASC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.AgentID, &e.Time, &e.Capital, &e.Balance, &e.MarginUsed); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOrderEvents returns every recorded transition of an agent's orders.
func (j *SQLite) ListOrderEvents(ctx context.Context, agentID string) ([]OrderRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT order_id, agent_id, symbol, side, type, quantity, limit_price, from_status, to_status, reason, time
		FROM order_events
		WHERE agent_id = ?
		ORDER BY time ASC, rowid ASC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var (
			rec       OrderRecord
			side, typ string
		)
		if err := rows.Scan(
			&rec.OrderID, &rec.AgentID, &rec.Symbol, &side, &typ, &rec.Quantity,
			&rec.LimitPrice, &rec.From, &rec.To, &rec.Reason, &rec.Time,
		); err != nil {
			return nil, err
		}
		rec.Side = order.Side(side)
		rec.Type = order.Type(typ)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestPerformance returns the newest performance snapshot for agentID.
func (j *SQLite) LatestPerformance(ctx context.Context, agentID string) (PerformanceRecord, error) {
	var p PerformanceRecord
	err := j.db.QueryRowContext(ctx, `
		SELECT agent_id, as_of, sharpe, sortino, max_drawdown, current_drawdown, volatility,
		       total_return, win_rate, profit_factor, total_trades, winning_trades
		FROM performance
		WHERE agent_id = ?
		ORDER BY as_of DESC, rowid DESC
		LIMIT 1`, agentID).Scan(
		&p.AgentID, &p.AsOf, &p.SharpeRatio, &p.SortinoRatio, &p.MaxDrawdown, &p.CurrentDrawdown,
		&p.Volatility, &p.TotalReturn, &p.WinRate, &p.ProfitFactor, &p.TotalTrades, &p.WinningTrades,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PerformanceRecord{}, fmt.Errorf("performance for agent %q not found", agentID)
		}
		return PerformanceRecord{}, err
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec  TradeRecord
		seq  int64
		side string
	)
	err := s.Scan(
		&rec.ID, &seq, &rec.AgentID, &rec.OrderID, &rec.Symbol, &side,
		&rec.Quantity, &rec.Price, &rec.Fee, &rec.RealizedPnL, &rec.Closing, &rec.Time, &rec.Reason,
	)
	rec.Seq = uint64(seq)
	rec.Side = order.Side(side)
	return rec, err
}
