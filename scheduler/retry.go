package scheduler

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"github.com/rustyeddy/arena/fault"
)

// call runs fn with a per-attempt timeout. Transient failures are retried
// with linear backoff until MaxAttempts; anything else returns at once.
func (s *Scheduler) call(ctx context.Context, agentID string, cycle uint64, name string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		err = fn(cctx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = classify(err)
		if !fault.IsRetryable(err) || attempt == s.cfg.MaxAttempts {
			break
		}

		s.metrics.retries.Inc()
		wait := time.Duration(attempt) * s.cfg.RetryBackoff
		logs.Infof("agent=%s cycle=%d %s attempt %d/%d failed, retry in %s, err: %+v",
			agentID, cycle, name, attempt, s.cfg.MaxAttempts, wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fault.Annotate(err, agentID, cycle)
}

// classify treats unclassified collaborator errors as transient. Only the
// fault package marks an error validation or fatal.
func classify(err error) error {
	if fault.KindOf(err) == fault.KindUnknown {
		return fault.Transient(err)
	}
	return err
}
