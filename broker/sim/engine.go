// Package sim is a deterministic in-process exchange. Orders fill against
// the marks held in a market.Store.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/broker"
	"github.com/rustyeddy/arena/fault"
	"github.com/rustyeddy/arena/market"
	"github.com/rustyeddy/arena/order"
)

type Config struct {
	// FeeRate is charged on fill notional, e.g. 0.0005 for 5bps.
	FeeRate float64
	// SlippageBps moves market fills against the taker.
	SlippageBps float64
	// MaxFillQty caps each fill. Larger orders fill in slices, one slice
	// now and one per subsequent price update. Zero fills in full.
	MaxFillQty float64
	// Leverage sets initial margin as notional / Leverage. Defaults to 10.
	Leverage float64
}

type account struct {
	balance float64
	book    agent.Book
}

type working struct {
	sub     broker.Submission
	filled  float64
	pending []broker.Update
	done    bool
}

type Engine struct {
	mu       sync.Mutex
	cfg      Config
	quotes   *market.Store
	accounts map[string]*account
	orders   map[string]*working
	faults   map[string][]error
	now      func() time.Time
}

var _ broker.Exchange = (*Engine)(nil)

type Option func(*Engine)

// WithClock replaces time.Now for timestamps on updates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(cfg Config, quotes *market.Store, opts ...Option) *Engine {
	if cfg.Leverage <= 0 {
		cfg.Leverage = 10
	}
	if quotes == nil {
		quotes = market.NewStore()
	}
	e := &Engine{
		cfg:      cfg,
		quotes:   quotes,
		accounts: make(map[string]*account),
		orders:   make(map[string]*working),
		faults:   make(map[string][]error),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Quotes exposes the engine's market data as a market.Source.
func (e *Engine) Quotes() *market.Store { return e.quotes }

// OpenAccount funds a new account for agentID.
func (e *Engine) OpenAccount(agentID string, balance float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accounts[agentID] = &account{balance: balance, book: make(agent.Book)}
}

// InjectFault makes the next calls to op ("submit", "updates", "cancel",
// "account") fail with the given errors, one per call.
func (e *Engine) InjectFault(op string, errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[op] = append(e.faults[op], errs...)
}

func (e *Engine) takeFaultLocked(op string) error {
	q := e.faults[op]
	if len(q) == 0 {
		return nil
	}
	e.faults[op] = q[1:]
	return q[0]
}

func (e *Engine) Submit(ctx context.Context, s broker.Submission) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fault.Transient(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.takeFaultLocked("submit"); err != nil {
		return "", err
	}

	exID := "sim-" + s.OrderID
	// resubmitting a known order id is a no-op, so retries are safe
	if _, ok := e.orders[exID]; ok {
		return exID, nil
	}
	w := &working{sub: s}
	e.orders[exID] = w
	now := e.now()

	if _, ok := e.accounts[s.AgentID]; !ok {
		e.finishLocked(w, order.ExchangeRejected, "unknown account", now)
		return exID, nil
	}
	if s.Request.Validate() != nil || s.Request.Quantity <= 0 {
		e.finishLocked(w, order.ExchangeRejected, "invalid order", now)
		return exID, nil
	}
	q, err := e.quotes.Get(s.Request.Symbol)
	if err != nil || q.MarkPrice <= 0 {
		e.finishLocked(w, order.ExchangeRejected, "no market for "+s.Request.Symbol, now)
		return exID, nil
	}

	w.pending = append(w.pending, broker.Update{OrderID: s.OrderID, Status: order.Submitted, Time: now})
	e.tryFillLocked(w, q, now)
	return exID, nil
}

func (e *Engine) Updates(ctx context.Context, exID string) ([]broker.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Transient(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.takeFaultLocked("updates"); err != nil {
		return nil, err
	}
	w, ok := e.orders[exID]
	if !ok {
		return nil, fmt.Errorf("updates: %w: %q", broker.ErrUnknownOrder, exID)
	}
	out := w.pending
	w.pending = nil
	return out, nil
}

func (e *Engine) Cancel(ctx context.Context, exID string) error {
	if err := ctx.Err(); err != nil {
		return fault.Transient(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.takeFaultLocked("cancel"); err != nil {
		return err
	}
	w, ok := e.orders[exID]
	if !ok {
		return fmt.Errorf("cancel: %w: %q", broker.ErrUnknownOrder, exID)
	}
	if w.done {
		return nil
	}
	e.finishLocked(w, order.Cancelled, "cancelled", e.now())
	return nil
}

func (e *Engine) AccountState(ctx context.Context, agentID string) (broker.Account, error) {
	if err := ctx.Err(); err != nil {
		return broker.Account{}, fault.Transient(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.takeFaultLocked("account"); err != nil {
		return broker.Account{}, err
	}
	a, ok := e.accounts[agentID]
	if !ok {
		return broker.Account{}, fmt.Errorf("account state: %w: %q", broker.ErrUnknownAccount, agentID)
	}
	for sym := range a.book {
		if q, err := e.quotes.Get(sym); err == nil {
			a.book.Mark(sym, q.MarkPrice)
		}
	}

	capital := a.balance + a.book.UnrealizedPnL()
	margin := a.book.Notional() / e.cfg.Leverage
	return broker.Account{
		AgentID:    agentID,
		Balance:    a.balance,
		Capital:    capital,
		MarginUsed: margin,
		FreeMargin: capital - margin,
		Positions:  a.book.List(),
		Time:       e.now(),
	}, nil
}

// UpdatePrice moves the mark for q.Symbol and works any resting orders
// in that symbol, oldest first.
func (e *Engine) UpdatePrice(q market.Quote) {
	if q.Time.IsZero() {
		q.Time = e.now()
	}
	e.quotes.Set(q)
	q, _ = e.quotes.Get(q.Symbol)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range e.accounts {
		a.book.Mark(q.Symbol, q.MarkPrice)
	}

	ids := make([]string, 0, len(e.orders))
	for id, w := range e.orders {
		if !w.done && w.sub.Request.Symbol == q.Symbol {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		e.tryFillLocked(e.orders[id], q, q.Time)
	}
}

func (e *Engine) tryFillLocked(w *working, q market.Quote, now time.Time) {
	req := w.sub.Request
	price := q.MarkPrice

	if req.Type == order.Limit {
		marketable := (req.Side == order.Buy && price <= req.LimitPrice) ||
			(req.Side == order.Sell && price >= req.LimitPrice)
		if !marketable {
			return
		}
	} else if e.cfg.SlippageBps > 0 {
		price *= 1 + req.Side.Sign()*e.cfg.SlippageBps/10_000
	}

	leaves := req.Quantity - w.filled
	qty := leaves
	if e.cfg.MaxFillQty > 0 && qty > e.cfg.MaxFillQty {
		qty = e.cfg.MaxFillQty
	}

	a := e.accounts[w.sub.AgentID]
	fee := qty * price * e.cfg.FeeRate
	realized := a.book.Apply(req.Symbol, req.Side, qty, price)
	a.book.Mark(req.Symbol, q.MarkPrice)
	a.balance += realized - fee
	w.filled += qty

	status := order.PartiallyFilled
	if req.Quantity-w.filled <= 1e-9 {
		status = order.Filled
		w.done = true
	}
	w.pending = append(w.pending, broker.Update{
		OrderID:   w.sub.OrderID,
		Status:    status,
		FillQty:   qty,
		FillPrice: price,
		Fee:       fee,
		Time:      now,
	})
}

func (e *Engine) finishLocked(w *working, status order.Status, reason string, now time.Time) {
	w.done = true
	w.pending = append(w.pending, broker.Update{OrderID: w.sub.OrderID, Status: status, Reason: reason, Time: now})
}
