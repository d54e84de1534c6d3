// Package scheduler drives every agent's decide, check, submit and settle
// cycle on its own goroutine, alongside the periodic scoring and drawdown
// monitor loops.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/broker"
	"github.com/rustyeddy/arena/decision"
	"github.com/rustyeddy/arena/journal"
	"github.com/rustyeddy/arena/market"
	"github.com/rustyeddy/arena/risk"
	"github.com/rustyeddy/arena/scoring"
)

// Gate lets an outer component veto trading, e.g. a closed tournament.
type Gate interface {
	AllowTrading(agentID string) bool
}

// DeciderResolver builds the decider an agent names.
type DeciderResolver interface {
	Resolve(a agent.Agent) (decision.Decider, error)
}

// Deps are the collaborators a Scheduler trades through.
type Deps struct {
	Registry *agent.Registry
	Exchange broker.Exchange
	Quotes   market.Source
	Risk     *risk.Manager
	Scoring  *scoring.Engine
	Journal  journal.Journal
	Deciders DeciderResolver
}

type Option func(*Scheduler)

func WithGate(g Gate) Option {
	return func(s *Scheduler) { s.gate = g }
}

// WithClock replaces time.Now for order, trade and equity timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// runner is the per-agent scheduling state. mu serializes cycles with
// the drawdown monitor.
type runner struct {
	mu      sync.Mutex
	limiter *limiter
	decider decision.Decider

	cancel context.CancelFunc
}

type Scheduler struct {
	cfg Config
	Deps

	gate    Gate
	now     func() time.Time
	metrics *Metrics

	mu      sync.Mutex
	runners map[string]*runner
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, deps Deps, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:     cfg.withDefaults(),
		Deps:    deps,
		now:     func() time.Time { return time.Now().UTC() },
		runners: make(map[string]*runner),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.Journal == nil {
		s.Journal = journal.Discard
	}
	if s.Scoring == nil {
		s.Scoring = scoring.NewEngine(scoring.DefaultConfig())
	}
	if s.Risk == nil {
		s.Risk = risk.NewManager(risk.DefaultConfig())
	}
	if s.Deciders == nil {
		s.Deciders = decision.NewResolver()
	}
	return s
}

func (s *Scheduler) Config() Config { return s.cfg }

func (s *Scheduler) runnerFor(id string) *runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[id]
	if !ok {
		r = &runner{limiter: newLimiter(s.cfg.MinTimeBetweenTrades, s.cfg.MaxDailyTrades)}
		s.runners[id] = r
	}
	return r
}

// Start launches a worker for every agent that is not halted, plus the
// scoring and drawdown monitor loops. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, h := range s.Registry.List() {
		if st := h.Status(); st == agent.Active || st == agent.Paused {
			s.startWorker(h.ID())
		}
	}

	s.loop(s.cfg.ScoreInterval, s.score)
	s.loop(s.cfg.RiskMonitorInterval, s.monitor)
	logs.Infof("scheduler started, interval %s", s.cfg.Interval)
}

// Stop cancels every worker and waits for in-flight cycles to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	logs.Info("scheduler stopped")
}

// Add starts a worker for an agent registered after Start.
func (s *Scheduler) Add(agentID string) error {
	if _, err := s.Registry.Get(agentID); err != nil {
		return err
	}
	s.startWorker(agentID)
	return nil
}

func (s *Scheduler) Pause(agentID string) error { return s.Registry.Pause(agentID) }

// Resume reactivates a paused or stopped agent and restarts its worker.
func (s *Scheduler) Resume(agentID string) error {
	if err := s.Registry.Resume(agentID); err != nil {
		return err
	}
	s.startWorker(agentID)
	return nil
}

// StopAgent halts one agent. Its worker exits at the next cycle.
func (s *Scheduler) StopAgent(agentID string) error { return s.Registry.Stop(agentID) }

func (s *Scheduler) startWorker(id string) {
	r := s.runnerFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil || r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	r.cancel = cancel

	s.wg.Add(1)
	s.metrics.activeAgents.Inc()
	go func() {
		defer s.wg.Done()
		defer s.metrics.activeAgents.Dec()
		defer func() {
			s.mu.Lock()
			r.cancel = nil
			s.mu.Unlock()
			cancel()
		}()
		s.work(ctx, id)
	}()
}

func (s *Scheduler) work(ctx context.Context, id string) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		out, err := s.RunCycle(ctx, id)
		if out == OutcomeHalted || out == OutcomeLiquidated || (err != nil && ctx.Err() == nil && s.halted(id)) {
			logs.Infof("agent=%s worker exiting, outcome %s", id, out)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) halted(id string) bool {
	h, err := s.Registry.Get(id)
	if err != nil {
		return true
	}
	st := h.Status()
	return st == agent.Stopped || st == agent.Liquidated
}

// loop fans fn out over the agents on every tick without waiting for the
// previous round; agents still busy from it are skipped.
func (s *Scheduler) loop(every time.Duration, fn func(context.Context, *agent.Handle)) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g := s.fanOut(ctx, fn)
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					_ = g.Wait()
				}()
			}
		}
	}()
}

// Positions returns the agent's positions as last synced from the exchange.
func (s *Scheduler) Positions(agentID string) ([]agent.Position, error) {
	h, err := s.Registry.Get(agentID)
	if err != nil {
		return nil, err
	}
	return h.View().Positions.List(), nil
}

func (s *Scheduler) Orders(agentID string) ([]journal.OrderRecord, error) {
	h, err := s.Registry.Get(agentID)
	if err != nil {
		return nil, err
	}
	v := h.View()
	out := make([]journal.OrderRecord, 0, len(v.Orders))
	for _, o := range v.Orders {
		out = append(out, journal.OrderRecordFrom(o))
	}
	return out, nil
}

func (s *Scheduler) Trades(agentID string) ([]journal.TradeRecord, error) {
	h, err := s.Registry.Get(agentID)
	if err != nil {
		return nil, err
	}
	return h.View().Trades, nil
}

func (s *Scheduler) Snapshot(agentID string) (scoring.Snapshot, bool) {
	return s.Scoring.Latest(agentID)
}
