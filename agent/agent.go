package agent

import (
	"time"

	"github.com/rustyeddy/arena/fault"
)

type Status string

const (
	Active     Status = "active"
	Paused     Status = "paused"
	Stopped    Status = "stopped"
	Liquidated Status = "liquidated"
)

// Terminal reports whether the agent can never trade again.
func (s Status) Terminal() bool { return s == Liquidated }

// Agent is an autonomous trader bound to one risk profile.
type Agent struct {
	ID      string
	OwnerID string
	Name    string
	Profile RiskProfile
	Symbols []string
	Decider string

	InitialCapital float64
	Capital        float64 // current equity
	PeakCapital    float64

	Status    Status
	CreatedAt time.Time
}

func (a Agent) Validate() error {
	if a.ID == "" {
		return fault.Validation("agent id is required")
	}
	if a.OwnerID == "" {
		return fault.Validation("agent %s: owner id is required", a.ID)
	}
	if a.InitialCapital <= 0 {
		return fault.Validation("agent %s: initial capital must be positive", a.ID)
	}
	if len(a.Symbols) == 0 {
		return fault.Validation("agent %s: at least one symbol is required", a.ID)
	}
	if _, err := Profile(a.Profile.Name); err != nil {
		return err
	}
	return a.Profile.Validate()
}

// Drawdown is the fractional fall of Capital from PeakCapital.
func (a Agent) Drawdown() float64 {
	if a.PeakCapital <= 0 || a.Capital >= a.PeakCapital {
		return 0
	}
	return (a.PeakCapital - a.Capital) / a.PeakCapital
}

// MarkCapital records a fresh equity reading and raises the peak.
func (a *Agent) MarkCapital(capital float64) {
	a.Capital = capital
	if capital > a.PeakCapital {
		a.PeakCapital = capital
	}
}

func (a Agent) clone() Agent {
	a.Symbols = append([]string(nil), a.Symbols...)
	return a
}
