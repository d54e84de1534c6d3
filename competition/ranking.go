package competition

import (
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/arena/risk"
	"github.com/rustyeddy/arena/scoring"
)

// ScoreFunc turns a performance snapshot into a ranking score. Higher
// ranks first.
type ScoreFunc func(scoring.Snapshot) float64

// RiskAdjustedReturn weights total return by the magnitude of the Sharpe
// ratio.
func RiskAdjustedReturn(s scoring.Snapshot) float64 {
	return s.TotalReturn * (1 + math.Abs(s.SharpeRatio))
}

// TournamentScore blends return, Sharpe ratio and drawdown control on a
// 0-100 scale, weighted 40/35/25.
func TournamentScore(s scoring.Snapshot) float64 {
	ret := clamp((s.TotalReturn+0.5)/1.5*100, 0, 100)

	var sharpe float64
	switch {
	case s.SharpeRatio <= 0:
	case s.SharpeRatio <= 1:
		sharpe = 50 * s.SharpeRatio
	default:
		sharpe = 50 + math.Min(50, 25*math.Log(s.SharpeRatio+1))
	}

	dd := clamp(100*(1-s.MaxDrawdown/0.5), 0, 100)
	return 0.40*ret + 0.35*sharpe + 0.25*dd
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func (e *Engine) scoreFor(k Kind) ScoreFunc {
	if k == Tournament {
		return e.tournamentScore
	}
	return e.score
}

// Rank snapshots the current order of the competition's remaining members
// and appends it to its history.
func (e *Engine) Rank(compID string) (Ranking, error) {
	s, err := e.slot(compID)
	if err != nil {
		return Ranking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r := e.rankLocked(&s.c, s.c.remaining(), e.now())
	s.c.Rankings = append(s.c.Rankings, r)
	return r.clone(), nil
}

func (e *Engine) rankLocked(c *Competition, members []Member, at time.Time) Ranking {
	return Ranking{CompetitionID: c.ID, At: at, Entries: e.order(c.Kind, members)}
}

// order ranks members by the score for kind, then lower max drawdown,
// then earlier join.
func (e *Engine) order(kind Kind, members []Member) []Entry {
	score := e.scoreFor(kind)
	type row struct {
		Entry
		seq int
	}
	rows := make([]row, 0, len(members))
	for _, m := range members {
		snap, _ := e.scores.Latest(m.AgentID)
		rows = append(rows, row{
			Entry: Entry{
				AgentID:     m.AgentID,
				Score:       score(snap),
				TotalReturn: snap.TotalReturn,
				SharpeRatio: snap.SharpeRatio,
				MaxDrawdown: snap.MaxDrawdown,
				RiskScore:   e.riskScore(m.AgentID, snap),
				Tier:        m.Tier,
				Eliminated:  m.Eliminated,
			},
			seq: m.Seq,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.MaxDrawdown != b.MaxDrawdown {
			return a.MaxDrawdown < b.MaxDrawdown
		}
		return a.seq < b.seq
	})

	out := make([]Entry, len(rows))
	for i, r := range rows {
		r.Entry.Rank = i + 1
		out[i] = r.Entry
	}
	return out
}

func (e *Engine) riskScore(agentID string, snap scoring.Snapshot) float64 {
	var lev float64
	if h, err := e.reg.Get(agentID); err == nil {
		v := h.View()
		lev = risk.Leverage(v.Positions.List(), v.Agent.Capital)
	}
	return risk.RiskScore(risk.Metrics{
		SharpeRatio:  snap.SharpeRatio,
		SortinoRatio: snap.SortinoRatio,
		MaxDrawdown:  snap.MaxDrawdown,
		Consistency:  snap.Consistency,
		Leverage:     lev,
		Volatility:   snap.Volatility,
	})
}
