package scheduler

import (
	"sync"
	"time"

	"github.com/rustyeddy/arena/fault"
)

// limiter enforces the per-agent cooldown and daily trade cap. The day
// rolls over at UTC midnight.
type limiter struct {
	mu       sync.Mutex
	minGap   time.Duration
	maxDaily int

	last  time.Time
	day   string
	count int
}

func newLimiter(minGap time.Duration, maxDaily int) *limiter {
	return &limiter{minGap: minGap, maxDaily: maxDaily}
}

func (l *limiter) rollLocked(now time.Time) {
	d := now.UTC().Format("2006-01-02")
	if d != l.day {
		l.day = d
		l.count = 0
	}
}

// Allow reports whether a trade may be placed at now.
func (l *limiter) Allow(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked(now)

	if l.minGap > 0 && !l.last.IsZero() {
		if since := now.Sub(l.last); since < l.minGap {
			return fault.New(fault.ErrRateLimited, "last trade %s ago, minimum gap %s", since.Truncate(time.Second), l.minGap)
		}
	}
	if l.maxDaily > 0 && l.count >= l.maxDaily {
		return fault.New(fault.ErrRateLimited, "%d trades today, daily cap %d", l.count, l.maxDaily)
	}
	return nil
}

// Record counts a placed trade.
func (l *limiter) Record(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked(now)
	l.last = now
	l.count++
}
