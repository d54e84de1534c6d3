// Package competition groups agents into leagues and tournaments and ranks
// them by their latest performance snapshot.
package competition

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/arena/fault"
)

type Kind string

const (
	League     Kind = "league"
	Tournament Kind = "tournament"
)

type Status string

const (
	Pending Status = "pending"
	Active  Status = "active"
	Closed  Status = "closed"
)

// Tier is a league bracket. Higher is better.
type Tier int

const (
	Bronze Tier = iota
	Silver
	Gold
	Platinum
)

var tierNames = []string{"bronze", "silver", "gold", "platinum"}

func (t Tier) String() string {
	if t < Bronze || t > Platinum {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

func ParseTier(s string) (Tier, error) {
	for i, n := range tierNames {
		if strings.EqualFold(s, n) {
			return Tier(i), nil
		}
	}
	return Bronze, fault.Validation("unknown tier %q", s)
}

func (t Tier) up() (Tier, bool) {
	if t >= Platinum {
		return t, false
	}
	return t + 1, true
}

func (t Tier) down() (Tier, bool) {
	if t <= Bronze {
		return t, false
	}
	return t - 1, true
}

// Spec describes a competition to create.
type Spec struct {
	Name            string
	Kind            Kind
	Tier            Tier // entry tier for league members
	MaxParticipants int  // 0 is unlimited
	MinAgents       int
	StartAt         time.Time
	EndAt           time.Time
	EntryFee        decimal.Decimal
	PrizePool       decimal.Decimal
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fault.Validation("competition name is required")
	}
	switch s.Kind {
	case League, Tournament:
	default:
		return fault.Validation("competition %q: unknown kind %q", s.Name, s.Kind)
	}
	if s.Tier < Bronze || s.Tier > Platinum {
		return fault.Validation("competition %q: invalid tier %d", s.Name, s.Tier)
	}
	if s.MaxParticipants < 0 || s.MinAgents < 0 {
		return fault.Validation("competition %q: participant bounds must be non-negative", s.Name)
	}
	if s.MaxParticipants > 0 && s.MinAgents > s.MaxParticipants {
		return fault.Validation("competition %q: min agents %d exceeds max participants %d", s.Name, s.MinAgents, s.MaxParticipants)
	}
	if s.EntryFee.IsNegative() || s.PrizePool.IsNegative() {
		return fault.Validation("competition %q: fees and prizes must be non-negative", s.Name)
	}
	if s.Kind == Tournament {
		if s.StartAt.IsZero() || s.EndAt.IsZero() {
			return fault.Validation("tournament %q: start and end are required", s.Name)
		}
		if !s.EndAt.After(s.StartAt) {
			return fault.Validation("tournament %q: end must be after start", s.Name)
		}
	}
	return nil
}

type Member struct {
	AgentID  string
	JoinedAt time.Time
	// Seq is the join order, used as the last tie-breaker.
	Seq          int
	Tier         Tier
	Eliminated   bool
	EliminatedAt time.Time
}

// Entry is one line of a ranking.
type Entry struct {
	Rank        int
	AgentID     string
	Score       float64
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	// RiskScore is the 0-100 composite from risk.RiskScore.
	RiskScore  float64
	Tier       Tier
	Eliminated bool
	Payout     decimal.Decimal
}

// Ranking is an immutable snapshot of a competition's order at At.
type Ranking struct {
	CompetitionID string
	At            time.Time
	Final         bool
	Entries       []Entry
}

func (r Ranking) clone() Ranking {
	r.Entries = append([]Entry(nil), r.Entries...)
	return r
}

// TierChange is one member moving between league tiers.
type TierChange struct {
	AgentID string
	From    Tier
	To      Tier
}

type Competition struct {
	ID              string
	Name            string
	Kind            Kind
	Status          Status
	Tier            Tier
	MaxParticipants int
	MinAgents       int
	StartAt         time.Time
	EndAt           time.Time
	EntryFee        decimal.Decimal
	PrizePool       decimal.Decimal
	Members         []Member
	Rankings        []Ranking
	CreatedAt       time.Time
	LastTierChange  time.Time
	LastElimination time.Time
}

func (c *Competition) member(agentID string) (int, bool) {
	for i, m := range c.Members {
		if m.AgentID == agentID {
			return i, true
		}
	}
	return -1, false
}

func (c *Competition) remaining() []Member {
	out := make([]Member, 0, len(c.Members))
	for _, m := range c.Members {
		if !m.Eliminated {
			out = append(out, m)
		}
	}
	return out
}

func (c *Competition) clone() Competition {
	cp := *c
	cp.Members = append([]Member(nil), c.Members...)
	cp.Rankings = make([]Ranking, len(c.Rankings))
	for i, r := range c.Rankings {
		cp.Rankings[i] = r.clone()
	}
	return cp
}
