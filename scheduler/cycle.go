package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/broker"
	"github.com/rustyeddy/arena/decision"
	"github.com/rustyeddy/arena/fault"
	"github.com/rustyeddy/arena/journal"
	"github.com/rustyeddy/arena/market"
	"github.com/rustyeddy/arena/order"
	"github.com/rustyeddy/arena/pkg/id"
	"github.com/rustyeddy/arena/risk"
	"github.com/rustyeddy/arena/scoring"
)

// Outcome labels how a cycle ended.
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeHalted     Outcome = "halted"
	OutcomeHold       Outcome = "hold"
	OutcomeRejected   Outcome = "rejected"
	OutcomeTraded     Outcome = "traded"
	OutcomeFailed     Outcome = "failed"
	OutcomeLiquidated Outcome = "liquidated"
)

// RunCycle runs one full cycle for the agent and returns when it is done.
// Risk rejections come back as risk-kind errors after being recorded as
// feedback; fatal errors stop the agent.
func (s *Scheduler) RunCycle(ctx context.Context, agentID string) (Outcome, error) {
	h, err := s.Registry.Get(agentID)
	if err != nil {
		return OutcomeFailed, err
	}
	r := s.runnerFor(agentID)
	r.mu.Lock()
	defer r.mu.Unlock()

	var cycle uint64
	_ = h.Do(func(st *agent.State) error {
		st.Cycle++
		cycle = st.Cycle
		return nil
	})

	out, err := s.cycle(ctx, h, r, cycle)
	s.metrics.cycles.WithLabelValues(string(out)).Inc()

	switch fault.KindOf(err) {
	case fault.KindFatal:
		if !errors.Is(err, fault.ErrLiquidated) {
			s.halt(h, cycle, err)
			out = OutcomeHalted
		}
	case fault.KindRisk:
		logs.Infof("agent=%s cycle=%d rejected: %s", agentID, cycle, err)
	case fault.KindUnknown:
	default:
		logs.Errorf("agent=%s cycle=%d failed, err: %+v", agentID, cycle, err)
	}
	return out, err
}

func (s *Scheduler) halt(h *agent.Handle, cycle uint64, cause error) {
	_ = h.Do(func(st *agent.State) error {
		if !st.Agent.Status.Terminal() {
			st.Agent.Status = agent.Stopped
		}
		return nil
	})
	logs.Errorf("agent=%s cycle=%d halted, err: %+v", h.ID(), cycle, cause)
}

func (s *Scheduler) cycle(ctx context.Context, h *agent.Handle, r *runner, cycle uint64) (Outcome, error) {
	a := h.Agent()
	switch a.Status {
	case agent.Paused:
		return OutcomeSkipped, nil
	case agent.Stopped, agent.Liquidated:
		return OutcomeHalted, nil
	}
	if s.gate != nil && !s.gate.AllowTrading(a.ID) {
		_ = h.Do(func(st *agent.State) error {
			if !st.Agent.Status.Terminal() {
				st.Agent.Status = agent.Stopped
			}
			return nil
		})
		logs.Infof("agent=%s cycle=%d trading closed, stopping", a.ID, cycle)
		return OutcomeHalted, nil
	}

	if err := s.reconcile(ctx, h, cycle); err != nil {
		return OutcomeFailed, err
	}

	acct, err := s.syncAccount(ctx, h, cycle)
	if err != nil {
		return OutcomeFailed, err
	}
	a = h.Agent()
	if breach := s.Risk.CheckDrawdown(a); breach.Triggered {
		return OutcomeLiquidated, s.liquidate(ctx, h, cycle, acct, breach)
	} else if breach.Warning {
		logs.Infof("agent=%s cycle=%d drawdown warning %.2f%% of limit %.2f%%", a.ID, cycle, 100*breach.Drawdown, 100*breach.Limit)
	}

	quotes, err := s.fetchQuotes(ctx, a, cycle)
	if err != nil {
		return OutcomeFailed, err
	}

	if r.decider == nil {
		d, err := s.Deciders.Resolve(a)
		if err != nil {
			return OutcomeFailed, fault.Fatal(fmt.Errorf("resolve decider: %v", err))
		}
		r.decider = d
	}

	var feedback string
	_ = h.Do(func(st *agent.State) error {
		feedback, st.LastRejection = st.LastRejection, ""
		return nil
	})
	dc := decision.Context{
		AgentID:       a.ID,
		Time:          s.now(),
		Capital:       a.Capital,
		Profile:       a.Profile,
		Quotes:        quotes,
		Positions:     acct.Positions,
		LastRejection: feedback,
	}
	var action decision.Action
	err = s.call(ctx, a.ID, cycle, "decide", func(ctx context.Context) error {
		var err error
		action, err = r.decider.Decide(ctx, dc)
		return err
	})
	if err != nil {
		if fault.KindOf(err) == fault.KindValidation {
			s.reject(h, nil, err)
			return OutcomeRejected, err
		}
		return OutcomeFailed, err
	}

	req, ok := action.Request()
	if !ok {
		return OutcomeHold, nil
	}

	now := s.now()
	if err := r.limiter.Allow(now); err != nil {
		err = fault.Annotate(err, a.ID, cycle)
		s.reject(h, nil, err)
		return OutcomeRejected, err
	}

	o := order.New(id.Prefixed("ord"), a.ID, req, now)
	q, ok := quotes[req.Symbol]
	if !ok {
		err := fault.Annotate(fault.Validation("no quote for %q", req.Symbol), a.ID, cycle)
		_ = o.Transition(order.RiskRejected, now, fault.ErrValidation.Code)
		s.reject(h, o, err)
		return OutcomeRejected, err
	}

	dec := s.Risk.Evaluate(a, req, acct, q)
	if !dec.Allowed() {
		err := fault.Annotate(dec.Err(), a.ID, cycle)
		_ = o.Transition(order.RiskRejected, now, dec.Reason())
		s.reject(h, o, err)
		return OutcomeRejected, err
	}
	reason := ""
	if dec.Verdict == risk.Adjust {
		reason = "size adjusted"
	}
	if err := o.Approve(dec.Quantity, now, reason); err != nil {
		return OutcomeFailed, fault.Fatal(err)
	}
	s.track(h, o)

	if err := s.submit(ctx, h, o, cycle); err != nil {
		return OutcomeFailed, err
	}
	r.limiter.Record(now)

	if err := s.settle(ctx, h, o, cycle); err != nil {
		return OutcomeTraded, err
	}
	s.refresh(ctx, h, cycle)
	return OutcomeTraded, nil
}

// reject records a refused order and the feedback for the next decision.
func (s *Scheduler) reject(h *agent.Handle, o *order.Order, err error) {
	_ = h.Do(func(st *agent.State) error {
		st.LastRejection = err.Error()
		if o != nil {
			st.Orders = append(st.Orders, o)
		}
		return nil
	})
	s.metrics.rejections.WithLabelValues(fault.Code(err)).Inc()
	if o != nil {
		s.metrics.orders.WithLabelValues(o.Status.String()).Inc()
		s.recordOrder(o)
	}
}

// track adds an approved order to the agent's history.
func (s *Scheduler) track(h *agent.Handle, o *order.Order) {
	_ = h.Do(func(st *agent.State) error {
		st.Orders = append(st.Orders, o)
		return nil
	})
	s.metrics.orders.WithLabelValues(o.Status.String()).Inc()
	s.recordOrder(o)
}

func (s *Scheduler) recordOrder(o *order.Order) {
	if err := s.Journal.RecordOrder(journal.OrderRecordFrom(o)); err != nil {
		logs.Errorf("agent=%s journal order %s, err: %+v", o.AgentID, o.ID, err)
	}
}

func (s *Scheduler) syncAccount(ctx context.Context, h *agent.Handle, cycle uint64) (broker.Account, error) {
	id := h.ID()
	var acct broker.Account
	err := s.call(ctx, id, cycle, "account", func(ctx context.Context) error {
		var err error
		acct, err = s.Exchange.AccountState(ctx, id)
		return err
	})
	if err != nil {
		return broker.Account{}, err
	}
	_ = h.Do(func(st *agent.State) error {
		st.Agent.MarkCapital(acct.Capital)
		st.Positions = acct.Book()
		return nil
	})
	return acct, nil
}

func (s *Scheduler) fetchQuotes(ctx context.Context, a agent.Agent, cycle uint64) (map[string]market.Quote, error) {
	out := make(map[string]market.Quote, len(a.Symbols))
	for _, sym := range a.Symbols {
		err := s.call(ctx, a.ID, cycle, "quote "+sym, func(ctx context.Context) error {
			q, err := s.Quotes.Latest(ctx, sym)
			if err != nil {
				return err
			}
			if err := market.Fresh(q, s.cfg.MaxQuoteAge, s.now()); err != nil {
				return err
			}
			out[sym] = q
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Scheduler) submit(ctx context.Context, h *agent.Handle, o *order.Order, cycle uint64) error {
	sub := broker.Submission{OrderID: o.ID, AgentID: o.AgentID, Request: o.Request}
	var exID string
	err := s.call(ctx, o.AgentID, cycle, "submit", func(ctx context.Context) error {
		var err error
		exID, err = s.Exchange.Submit(ctx, sub)
		return err
	})
	if err != nil {
		return err
	}
	_ = h.Do(func(st *agent.State) error {
		o.ExchangeID = exID
		st.OpenOrders[o.ID] = o
		return nil
	})
	logs.Infof("agent=%s cycle=%d submitted %s", o.AgentID, cycle, o)
	return nil
}

// settle polls the exchange until o is terminal or the fill timeout passes,
// then cancels the remainder. An order the exchange has not confirmed as
// cancelled stays open and is reconciled on a later cycle.
func (s *Scheduler) settle(ctx context.Context, h *agent.Handle, o *order.Order, cycle uint64) error {
	deadline := time.Now().Add(s.cfg.FillTimeout)
	for {
		if err := s.drain(ctx, h, o, cycle); err != nil {
			return err
		}
		if s.closed(h, o) {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.FillPollInterval):
		}
	}

	logs.Infof("agent=%s cycle=%d fill timeout on %s, cancelling", o.AgentID, cycle, o.ID)
	err := s.call(ctx, o.AgentID, cycle, "cancel", func(ctx context.Context) error {
		return s.Exchange.Cancel(ctx, o.ExchangeID)
	})
	if err != nil {
		return err
	}
	return s.drain(ctx, h, o, cycle)
}

func (s *Scheduler) closed(h *agent.Handle, o *order.Order) bool {
	var done bool
	_ = h.Do(func(*agent.State) error {
		done = o.Status.Terminal()
		return nil
	})
	return done
}

// reconcile drains updates for orders left open by earlier cycles and
// cancels any that have outlived the fill timeout.
func (s *Scheduler) reconcile(ctx context.Context, h *agent.Handle, cycle uint64) error {
	var open []*order.Order
	_ = h.Do(func(st *agent.State) error {
		for _, o := range st.OpenOrders {
			open = append(open, o)
		}
		return nil
	})
	for _, o := range open {
		if err := s.drain(ctx, h, o, cycle); err != nil {
			return err
		}
		if s.closed(h, o) || s.now().Sub(o.CreatedAt) < s.cfg.FillTimeout {
			continue
		}
		err := s.call(ctx, o.AgentID, cycle, "cancel", func(ctx context.Context) error {
			return s.Exchange.Cancel(ctx, o.ExchangeID)
		})
		if err != nil {
			return err
		}
		if err := s.drain(ctx, h, o, cycle); err != nil {
			return err
		}
	}
	return nil
}

// drain fetches pending updates for o and folds them into the agent.
func (s *Scheduler) drain(ctx context.Context, h *agent.Handle, o *order.Order, cycle uint64) error {
	var ups []broker.Update
	err := s.call(ctx, o.AgentID, cycle, "updates", func(ctx context.Context) error {
		var err error
		ups, err = s.Exchange.Updates(ctx, o.ExchangeID)
		return err
	})
	if err != nil {
		return err
	}
	if len(ups) == 0 {
		return nil
	}

	var (
		trades []journal.TradeRecord
		events []journal.OrderRecord
	)
	_ = h.Do(func(st *agent.State) error {
		for _, u := range ups {
			if err := apply(st, o, u, &trades, &events); err != nil {
				logs.Errorf("agent=%s cycle=%d update for %s, err: %+v", o.AgentID, cycle, o.ID, err)
			}
		}
		if o.Status.Terminal() {
			delete(st.OpenOrders, o.ID)
		}
		return nil
	})

	for _, t := range trades {
		if err := s.Journal.RecordTrade(t); err != nil {
			logs.Errorf("agent=%s journal trade %s, err: %+v", t.AgentID, t.ID, err)
		}
	}
	for _, e := range events {
		s.metrics.orders.WithLabelValues(e.To).Inc()
		if err := s.Journal.RecordOrder(e); err != nil {
			logs.Errorf("agent=%s journal order %s, err: %+v", e.AgentID, e.OrderID, err)
		}
	}
	// Fills change the score even when the cycle that caused them fails
	// before its closing refresh.
	if len(trades) > 0 {
		s.rescore(h)
	}
	return nil
}

// apply folds one exchange update into o and the agent's book. Every
// transition it makes is appended to events and every fill to trades.
func apply(st *agent.State, o *order.Order, u broker.Update, trades *[]journal.TradeRecord, events *[]journal.OrderRecord) error {
	at := u.Time
	if at.IsZero() {
		at = o.CreatedAt
	}
	move := func(to order.Status, reason string) error {
		if err := o.Transition(to, at, reason); err != nil {
			return err
		}
		*events = append(*events, journal.OrderRecordFrom(o))
		return nil
	}

	if o.Status == order.RiskApproved && u.Status != order.ExchangeRejected {
		if err := move(order.Submitted, ""); err != nil {
			return err
		}
	}

	switch {
	case u.IsFill():
		sym, side := o.Request.Symbol, o.Request.Side
		closing := st.Positions.Signed(sym)*side.Sign() < 0
		if err := o.ApplyFill(u.FillQty, u.FillPrice, at); err != nil {
			return err
		}
		*events = append(*events, journal.OrderRecordFrom(o))

		realized := st.Positions.Apply(sym, side, u.FillQty, u.FillPrice)
		*trades = append(*trades, st.AppendTrade(journal.TradeRecord{
			ID:          id.Prefixed("trd"),
			OrderID:     o.ID,
			Symbol:      sym,
			Side:        side,
			Quantity:    u.FillQty,
			Price:       u.FillPrice,
			Fee:         u.Fee,
			RealizedPnL: realized,
			Closing:     closing,
			Time:        at,
			Reason:      o.Request.Reason,
		}))
	case u.Status == order.Cancelled, u.Status == order.ExchangeRejected:
		if o.Status.Terminal() {
			return nil
		}
		if u.Status == order.ExchangeRejected && o.Status == order.RiskApproved {
			if err := move(order.Submitted, ""); err != nil {
				return err
			}
		}
		return move(u.Status, u.Reason)
	}
	return nil
}

// refresh re-reads the account after trading and records an equity point
// and a fresh score.
func (s *Scheduler) refresh(ctx context.Context, h *agent.Handle, cycle uint64) {
	acct, err := s.syncAccount(ctx, h, cycle)
	if err != nil {
		logs.Errorf("agent=%s cycle=%d refresh account, err: %+v", h.ID(), cycle, err)
		return
	}
	s.record(h, acct)
}

// record appends an equity point for acct and recomputes the agent's score.
func (s *Scheduler) record(h *agent.Handle, acct broker.Account) scoring.Snapshot {
	var eq journal.EquitySnapshot
	_ = h.Do(func(st *agent.State) error {
		st.AppendEquity(journal.EquitySnapshot{
			Time:       s.now(),
			Capital:    acct.Capital,
			Balance:    acct.Balance,
			MarginUsed: acct.MarginUsed,
		})
		eq = st.Equity[len(st.Equity)-1]
		return nil
	})
	if err := s.Journal.RecordEquity(eq); err != nil {
		logs.Errorf("agent=%s journal equity, err: %+v", eq.AgentID, err)
	}
	return s.rescore(h)
}

// rescore recomputes the agent's score from its current trades and equity.
func (s *Scheduler) rescore(h *agent.Handle) scoring.Snapshot {
	now := s.now()
	var hist scoring.History
	_ = h.Do(func(st *agent.State) error {
		hist = scoring.History{
			AgentID:        st.Agent.ID,
			InitialCapital: st.Agent.InitialCapital,
			CurrentCapital: st.Agent.Capital,
			Trades:         append([]journal.TradeRecord(nil), st.Trades...),
			Equity:         append([]journal.EquitySnapshot(nil), st.Equity...),
			AsOf:           now,
		}
		return nil
	})

	snap := s.Scoring.Recompute(hist)
	if err := s.Journal.RecordPerformance(snap.Record()); err != nil {
		logs.Errorf("agent=%s journal performance, err: %+v", hist.AgentID, err)
	}
	return snap
}

// liquidationRounds bounds how often one liquidation re-reads the book
// and resends closing orders before leaving the rest to the monitor.
const liquidationRounds = 3

// liquidate marks the agent liquidated and flattens its book. Positions
// that survive every round are retried by the drawdown monitor.
func (s *Scheduler) liquidate(ctx context.Context, h *agent.Handle, cycle uint64, acct broker.Account, b risk.Breach) error {
	ctx = context.WithoutCancel(ctx)
	_ = h.Do(func(st *agent.State) error {
		st.Agent.Status = agent.Liquidated
		return nil
	})
	logs.Errorf("agent=%s cycle=%d drawdown %.2f%% reached limit %.2f%%, liquidating %d positions",
		b.AgentID, cycle, 100*b.Drawdown, 100*b.Limit, len(acct.Positions))

	if err := s.flatten(ctx, h, cycle); err != nil {
		logs.Errorf("agent=%s cycle=%d liquidation incomplete, err: %+v", b.AgentID, cycle, err)
	}
	s.refresh(ctx, h, cycle)
	s.metrics.liquidations.Inc()
	return fault.Annotate(fault.New(fault.ErrLiquidated, "drawdown %.4f reached limit %.4f", b.Drawdown, b.Limit), b.AgentID, cycle)
}

// flatten cancels working orders and closes every position at market
// until the exchange reports a flat book. Each round sizes the closing
// orders from a fresh account read, so fills that land during a cancel
// are closed too. Closing orders skip risk checks and rate limits.
func (s *Scheduler) flatten(ctx context.Context, h *agent.Handle, cycle uint64) error {
	agentID := h.ID()
	for round := 0; round <= liquidationRounds; round++ {
		s.cancelOpen(ctx, h, cycle)
		acct, err := s.syncAccount(ctx, h, cycle)
		if err != nil {
			if round == liquidationRounds {
				return err
			}
			logs.Errorf("agent=%s cycle=%d liquidation account, err: %+v", agentID, cycle, err)
			continue
		}
		if len(acct.Positions) == 0 {
			return nil
		}
		if round == liquidationRounds {
			return fmt.Errorf("%d positions still open after %d rounds", len(acct.Positions), liquidationRounds)
		}

		now := s.now()
		for _, req := range risk.LiquidationOrders(acct.Positions) {
			o := order.New(id.Prefixed("ord"), agentID, req, now)
			if err := o.Approve(req.Quantity, now, req.Reason); err != nil {
				logs.Errorf("agent=%s cycle=%d approve liquidation order, err: %+v", agentID, cycle, err)
				continue
			}
			s.track(h, o)
			err := s.submit(ctx, h, o, cycle)
			if err == nil {
				err = s.settle(ctx, h, o, cycle)
			}
			if err != nil {
				logs.Errorf("agent=%s cycle=%d close %s during liquidation, err: %+v", agentID, cycle, req.Symbol, err)
			}
		}
	}
	return nil
}

// cancelOpen cancels every working order and folds in whatever filled
// before the cancel landed.
func (s *Scheduler) cancelOpen(ctx context.Context, h *agent.Handle, cycle uint64) {
	var open []*order.Order
	_ = h.Do(func(st *agent.State) error {
		for _, o := range st.OpenOrders {
			open = append(open, o)
		}
		return nil
	})
	for _, o := range open {
		err := s.call(ctx, o.AgentID, cycle, "cancel", func(ctx context.Context) error {
			return s.Exchange.Cancel(ctx, o.ExchangeID)
		})
		if err == nil {
			err = s.drain(ctx, h, o, cycle)
		}
		if err != nil {
			logs.Errorf("agent=%s cycle=%d cancel %s, err: %+v", o.AgentID, cycle, o.ID, err)
		}
	}
}
