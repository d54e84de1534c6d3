package competition

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"github.com/rustyeddy/arena/fault"
)

// EliminationRound drops the bottom EliminationRate of an active
// tournament's remaining members, always leaving at least one. Tick runs
// rounds on its own at EliminationCadence.
func (e *Engine) EliminationRound(compID string) ([]string, error) {
	s, err := e.slot(compID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.c
	if c.Kind != Tournament {
		return nil, fault.Validation("competition %q is not a tournament", compID)
	}
	if c.Status != Active {
		return nil, fault.Validation("tournament %q is %s", compID, c.Status)
	}
	return e.eliminationLocked(c, e.now()), nil
}

func (e *Engine) eliminationLocked(c *Competition, now time.Time) []string {
	c.LastElimination = now
	ranked := e.order(c.Kind, c.remaining())
	n := len(ranked)
	k := int(math.Floor(float64(n) * e.cfg.EliminationRate))
	if k > n-1 {
		k = n - 1
	}
	if k <= 0 {
		return nil
	}

	out := make([]string, 0, k)
	for _, en := range ranked[n-k:] {
		i, _ := c.member(en.AgentID)
		c.Members[i].Eliminated = true
		c.Members[i].EliminatedAt = now
		out = append(out, en.AgentID)
	}
	c.Rankings = append(c.Rankings, e.rankLocked(c, c.remaining(), now))
	logs.Infof("competition=%s eliminated %d of %d", c.ID, k, n)
	return out
}

// Close ends a tournament early, paying out as if its end date had come.
func (e *Engine) Close(compID string) (Ranking, error) {
	s, err := e.slot(compID)
	if err != nil {
		return Ranking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.c
	if c.Kind != Tournament {
		return Ranking{}, fault.Validation("competition %q is not a tournament", compID)
	}
	if c.Status == Closed {
		return Ranking{}, fault.New(fault.ErrCompetitionClosed, "tournament %q is closed", compID)
	}
	return e.closeLocked(c, e.now()).clone(), nil
}

// closeLocked computes the final ranking, survivors first, and splits the
// prize pool along the payout curve.
func (e *Engine) closeLocked(c *Competition, now time.Time) Ranking {
	var survivors, out []Member
	for _, m := range c.Members {
		if m.Eliminated {
			out = append(out, m)
		} else {
			survivors = append(survivors, m)
		}
	}
	// Later eliminations placed higher.
	sort.SliceStable(out, func(i, j int) bool { return out[i].EliminatedAt.After(out[j].EliminatedAt) })

	entries := append(e.order(c.Kind, survivors), orderedByElimination(e, c.Kind, out)...)
	for i := range entries {
		entries[i].Rank = i + 1
	}

	shares := Payouts(c.PrizePool, e.cfg.PayoutCurve, len(entries))
	for i, p := range shares {
		entries[i].Payout = p
	}

	r := Ranking{CompetitionID: c.ID, At: now, Final: true, Entries: entries}
	c.Rankings = append(c.Rankings, r)
	c.Status = Closed
	logs.Infof("competition=%s closed, %d ranked, pool %s", c.ID, len(entries), c.PrizePool.StringFixed(2))
	return r
}

// orderedByElimination ranks each elimination round by score, keeping
// rounds in the given order.
func orderedByElimination(e *Engine, kind Kind, members []Member) []Entry {
	var out []Entry
	for i := 0; i < len(members); {
		j := i
		for j < len(members) && members[j].EliminatedAt.Equal(members[i].EliminatedAt) {
			j++
		}
		out = append(out, e.order(kind, members[i:j])...)
		i = j
	}
	return out
}

// Payouts splits pool over the first places along curve, in cents. With
// fewer places than the curve the used weights are renormalized. Rounding
// leftovers go to first place.
func Payouts(pool decimal.Decimal, curve []float64, places int) []decimal.Decimal {
	n := len(curve)
	if places < n {
		n = places
	}
	if n <= 0 || !pool.IsPositive() {
		return nil
	}

	total := decimal.Zero
	for _, w := range curve[:n] {
		total = total.Add(decimal.NewFromFloat(w))
	}
	if !total.IsPositive() {
		return nil
	}

	out := make([]decimal.Decimal, n)
	paid := decimal.Zero
	for i, w := range curve[:n] {
		out[i] = pool.Mul(decimal.NewFromFloat(w)).Div(total).Truncate(2)
		paid = paid.Add(out[i])
	}
	out[0] = out[0].Add(pool.Sub(paid))
	return out
}
