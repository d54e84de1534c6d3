package competition

import (
	"math"
	"time"

	"github.com/yanun0323/logs"

	"github.com/rustyeddy/arena/fault"
)

// ApplyTierTransitions promotes the top PromotePct and demotes the bottom
// DemotePct of every tier in an active league. All moves are computed
// from one ranking and applied together.
func (e *Engine) ApplyTierTransitions(compID string) ([]TierChange, error) {
	s, err := e.slot(compID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.c
	if c.Kind != League {
		return nil, fault.Validation("competition %q is not a league", compID)
	}
	if c.Status != Active {
		return nil, fault.Validation("league %q is %s", compID, c.Status)
	}
	return e.tierTransitionsLocked(c, e.now()), nil
}

func (e *Engine) tierTransitionsLocked(c *Competition, now time.Time) []TierChange {
	byTier := make(map[Tier][]Member)
	for _, m := range c.Members {
		byTier[m.Tier] = append(byTier[m.Tier], m)
	}

	var changes []TierChange
	for tier := Bronze; tier <= Platinum; tier++ {
		ranked := e.order(c.Kind, byTier[tier])
		n := len(ranked)
		promote := int(math.Floor(float64(n) * e.cfg.PromotePct))
		demote := int(math.Floor(float64(n) * e.cfg.DemotePct))
		if promote+demote > n {
			demote = n - promote
		}

		if to, ok := tier.up(); ok {
			for _, en := range ranked[:promote] {
				if en.RiskScore < e.cfg.MinPromotionRiskScore {
					continue
				}
				changes = append(changes, TierChange{AgentID: en.AgentID, From: tier, To: to})
			}
		}
		if to, ok := tier.down(); ok {
			for _, en := range ranked[n-demote:] {
				changes = append(changes, TierChange{AgentID: en.AgentID, From: tier, To: to})
			}
		}
	}

	for _, ch := range changes {
		if i, ok := c.member(ch.AgentID); ok {
			c.Members[i].Tier = ch.To
		}
		logs.Infof("competition=%s agent=%s tier %s -> %s", c.ID, ch.AgentID, ch.From, ch.To)
	}
	c.LastTierChange = now
	c.Rankings = append(c.Rankings, e.rankLocked(c, c.Members, now))
	return changes
}
