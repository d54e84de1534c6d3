package risk

import (
	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/order"
)

// Breach describes an agent's drawdown against its profile limit.
type Breach struct {
	AgentID   string
	Drawdown  float64
	Limit     float64
	Warning   bool
	Triggered bool
}

// CheckDrawdown compares current capital to the high-water mark. Reaching
// the profile limit triggers liquidation; reaching WarnAtPct of it warns.
func (m *Manager) CheckDrawdown(a agent.Agent) Breach {
	b := Breach{AgentID: a.ID, Drawdown: a.Drawdown(), Limit: a.Profile.MaxDrawdownPct}
	if b.Limit <= 0 {
		return b
	}
	b.Triggered = b.Drawdown >= b.Limit
	b.Warning = !b.Triggered && m.cfg.WarnAtPct > 0 && b.Drawdown >= b.Limit*m.cfg.WarnAtPct
	return b
}

// LiquidationOrders returns one market order closing each position. They
// bypass Evaluate.
func LiquidationOrders(ps []agent.Position) []order.Request {
	out := make([]order.Request, 0, len(ps))
	for _, p := range ps {
		if p.Size <= 0 {
			continue
		}
		side := order.Sell
		if p.Side == agent.Short {
			side = order.Buy
		}
		out = append(out, order.Request{
			Symbol:   p.Symbol,
			Side:     side,
			Type:     order.Market,
			Quantity: p.Size,
			Reason:   "LIQUIDATION",
		})
	}
	return out
}
