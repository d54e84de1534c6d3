package scheduler

import (
	"context"

	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/arena/agent"
)

// ScoreAll appends an equity point and recomputes the score of every
// agent, trading or not. Agents mid-cycle are skipped; the cycle records
// its own equity point.
func (s *Scheduler) ScoreAll(ctx context.Context) {
	_ = s.fanOut(ctx, s.score).Wait()
}

// MonitorAll checks drawdown for every agent between cycles. Agents
// mid-cycle are skipped since the cycle runs the same check. Liquidated
// agents are visited until their book is flat.
func (s *Scheduler) MonitorAll(ctx context.Context) {
	_ = s.fanOut(ctx, s.monitor).Wait()
}

// fanOut runs fn for every agent whose runner is idle, at most
// MonitorConcurrency at a time, so one slow account read never holds up
// the others. The runner lock is held for the duration of fn.
func (s *Scheduler) fanOut(ctx context.Context, fn func(context.Context, *agent.Handle)) *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.MonitorConcurrency)
	for _, h := range s.Registry.List() {
		if ctx.Err() != nil {
			break
		}
		r := s.runnerFor(h.ID())
		if !r.mu.TryLock() {
			continue
		}
		g.Go(func() error {
			defer r.mu.Unlock()
			fn(ctx, h)
			return nil
		})
	}
	return g
}

func (s *Scheduler) score(ctx context.Context, h *agent.Handle) {
	acct, err := s.syncAccount(ctx, h, 0)
	if err != nil {
		logs.Errorf("agent=%s scoring account, err: %+v", h.ID(), err)
		return
	}
	s.record(h, acct)
}

func (s *Scheduler) monitor(ctx context.Context, h *agent.Handle) {
	id := h.ID()
	if h.Status() == agent.Liquidated {
		if len(h.View().Positions) == 0 {
			return
		}
		ctx = context.WithoutCancel(ctx)
		if err := s.flatten(ctx, h, 0); err != nil {
			logs.Errorf("agent=%s liquidation retry, err: %+v", id, err)
		}
		s.refresh(ctx, h, 0)
		return
	}

	acct, err := s.syncAccount(ctx, h, 0)
	if err != nil {
		logs.Errorf("agent=%s drawdown monitor account, err: %+v", id, err)
		return
	}
	b := s.Risk.CheckDrawdown(h.Agent())
	switch {
	case b.Triggered:
		err := s.liquidate(ctx, h, 0, acct, b)
		logs.Errorf("agent=%s monitor liquidated, err: %+v", id, err)
	case b.Warning:
		logs.Infof("agent=%s drawdown warning %.2f%% of limit %.2f%%", id, 100*b.Drawdown, 100*b.Limit)
	}
}
