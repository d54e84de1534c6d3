package agent

import (
	"fmt"

	"github.com/rustyeddy/arena/fault"
)

type ProfileName string

const (
	Conservative ProfileName = "conservative"
	Moderate     ProfileName = "moderate"
	Aggressive   ProfileName = "aggressive"
)

// RiskProfile is the fixed set of limits an agent trades under.
type RiskProfile struct {
	Name           ProfileName `yaml:"name" json:"name"`
	MaxLeverage    float64     `yaml:"max_leverage" json:"max_leverage"`         // 5 = 5x
	MaxPositionPct float64     `yaml:"max_position_pct" json:"max_position_pct"` // 0.10 of capital per symbol
	MaxDrawdownPct float64     `yaml:"max_drawdown_pct" json:"max_drawdown_pct"` // 0.30 from peak
	RiskPerTrade   float64     `yaml:"risk_per_trade" json:"risk_per_trade"`     // 0.02 of capital
}

var profiles = map[ProfileName]RiskProfile{
	Conservative: {Name: Conservative, MaxLeverage: 2, MaxPositionPct: 0.05, MaxDrawdownPct: 0.15, RiskPerTrade: 0.01},
	Moderate:     {Name: Moderate, MaxLeverage: 5, MaxPositionPct: 0.10, MaxDrawdownPct: 0.30, RiskPerTrade: 0.02},
	Aggressive:   {Name: Aggressive, MaxLeverage: 10, MaxPositionPct: 0.20, MaxDrawdownPct: 0.50, RiskPerTrade: 0.03},
}

// Profile returns the canonical profile for name.
func Profile(name ProfileName) (RiskProfile, error) {
	p, ok := profiles[name]
	if !ok {
		return RiskProfile{}, fault.Validation("unknown risk profile %q", name)
	}
	return p, nil
}

// MustProfile is Profile for the canonical names known at compile time.
func MustProfile(name ProfileName) RiskProfile {
	p, err := Profile(name)
	if err != nil {
		panic(err)
	}
	return p
}

func (p RiskProfile) Validate() error {
	switch {
	case p.MaxLeverage <= 0:
		return fault.Validation("max_leverage must be positive")
	case p.MaxPositionPct <= 0 || p.MaxPositionPct > 1:
		return fault.Validation("max_position_pct must be in (0, 1]")
	case p.MaxDrawdownPct <= 0 || p.MaxDrawdownPct >= 1:
		return fault.Validation("max_drawdown_pct must be in (0, 1)")
	case p.RiskPerTrade < 0 || p.RiskPerTrade > 1:
		return fault.Validation("risk_per_trade must be in [0, 1]")
	}
	return nil
}

func (p RiskProfile) String() string {
	return fmt.Sprintf("%s(%.0fx, %.0f%%, %.0f%%)", p.Name, p.MaxLeverage, 100*p.MaxPositionPct, 100*p.MaxDrawdownPct)
}
