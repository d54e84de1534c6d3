package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var (
	tradesHeader      = []string{"trade_id", "seq", "agent_id", "order_id", "symbol", "side", "quantity", "price", "fee", "realized_pnl", "closing", "time", "reason"}
	equityHeader      = []string{"agent_id", "time", "capital", "balance", "margin_used"}
	ordersHeader      = []string{"order_id", "agent_id", "symbol", "side", "type", "quantity", "limit_price", "from", "to", "reason", "time"}
	performanceHeader = []string{"agent_id", "as_of", "sharpe", "sortino", "max_drawdown", "current_drawdown", "volatility", "total_return", "win_rate", "profit_factor", "total_trades", "winning_trades"}
)

// CSV writes the ledger as four CSV files in one directory.
type CSV struct {
	mu    sync.Mutex
	files []*os.File

	trades, equity, orders, performance *csv.Writer
}

var _ Journal = (*CSV)(nil)

func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv dir: %w", err)
	}

	j := &CSV{}
	open := func(name string, header []string) (*csv.Writer, error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, f)
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.trades, err = open("trades.csv", tradesHeader); err != nil {
		return nil, errors.Join(err, j.closeFiles())
	}
	if j.equity, err = open("equity.csv", equityHeader); err != nil {
		return nil, errors.Join(err, j.closeFiles())
	}
	if j.orders, err = open("orders.csv", ordersHeader); err != nil {
		return nil, errors.Join(err, j.closeFiles())
	}
	if j.performance, err = open("performance.csv", performanceHeader); err != nil {
		return nil, errors.Join(err, j.closeFiles())
	}
	return j, nil
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	return j.write(j.trades, []string{
		t.ID,
		strconv.FormatUint(t.Seq, 10),
		t.AgentID,
		t.OrderID,
		t.Symbol,
		string(t.Side),
		f(t.Quantity),
		f(t.Price),
		f(t.Fee),
		f(t.RealizedPnL),
		strconv.FormatBool(t.Closing),
		t.Time.UTC().Format(time.RFC3339Nano),
		t.Reason,
	})
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	return j.write(j.equity, []string{
		e.AgentID,
		e.Time.UTC().Format(time.RFC3339Nano),
		f(e.Capital),
		f(e.Balance),
		f(e.MarginUsed),
	})
}

func (j *CSV) RecordOrder(o OrderRecord) error {
	return j.write(j.orders, []string{
		o.OrderID,
		o.AgentID,
		o.Symbol,
		string(o.Side),
		string(o.Type),
		f(o.Quantity),
		f(o.LimitPrice),
		o.From,
		o.To,
		o.Reason,
		o.Time.UTC().Format(time.RFC3339Nano),
	})
}

func (j *CSV) RecordPerformance(p PerformanceRecord) error {
	return j.write(j.performance, []string{
		p.AgentID,
		p.AsOf.UTC().Format(time.RFC3339Nano),
		f(p.SharpeRatio),
		f(p.SortinoRatio),
		f(p.MaxDrawdown),
		f(p.CurrentDrawdown),
		f(p.Volatility),
		f(p.TotalReturn),
		f(p.WinRate),
		f(p.ProfitFactor),
		strconv.Itoa(p.TotalTrades),
		strconv.Itoa(p.WinningTrades),
	})
}

func (j *CSV) write(w *csv.Writer, row []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, w := range []*csv.Writer{j.trades, j.equity, j.orders, j.performance} {
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}
	return j.closeFiles()
}

func (j *CSV) closeFiles() error {
	var errs []error
	for _, f := range j.files {
		errs = append(errs, f.Close())
	}
	j.files = nil
	return errors.Join(errs...)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
