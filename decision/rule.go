package decision

import (
	"context"
	"fmt"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/market"
)

type RuleConfig struct {
	Fast int `yaml:"fast" json:"fast"`
	Slow int `yaml:"slow" json:"slow"`
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{Fast: 5, Slow: 20}
}

type cross struct {
	fast, slow *market.EMA
	above      int // -1 below, +1 above, 0 unknown
}

// Rule trades EMA crossovers: it buys when the fast EMA crosses above the
// slow one and closes longs when it crosses back below.
type Rule struct {
	cfg    RuleConfig
	series map[string]*cross
}

func NewRule(cfg RuleConfig) *Rule {
	if cfg.Fast <= 0 || cfg.Slow <= cfg.Fast {
		cfg = DefaultRuleConfig()
	}
	return &Rule{cfg: cfg, series: make(map[string]*cross)}
}

func (r *Rule) Decide(ctx context.Context, dc Context) (Action, error) {
	if err := ctx.Err(); err != nil {
		return Action{}, err
	}

	var act *Action
	for _, sym := range dc.Symbols() {
		q := dc.Quotes[sym]
		c := r.series[sym]
		if c == nil {
			c = &cross{fast: market.NewEMA(r.cfg.Fast), slow: market.NewEMA(r.cfg.Slow)}
			r.series[sym] = c
		}
		c.fast.Update(q.MarkPrice)
		c.slow.Update(q.MarkPrice)
		if !c.slow.Ready() {
			continue
		}

		prev := c.above
		c.above = -1
		if c.fast.Value() > c.slow.Value() {
			c.above = 1
		}
		if act != nil || prev == 0 || prev == c.above {
			continue
		}

		pos, held := dc.Position(sym)
		switch {
		case c.above > 0 && (!held || pos.Side == agent.Short):
			act = &Action{Kind: Buy, Symbol: sym, Rationale: fmt.Sprintf("%s crossed above %s", c.fast.Name(), c.slow.Name())}
			if held {
				act.Size = pos.Size
			}
		case c.above < 0 && held && pos.Side == agent.Long:
			act = &Action{Kind: Sell, Symbol: sym, Size: pos.Size, Rationale: fmt.Sprintf("%s crossed below %s", c.fast.Name(), c.slow.Name())}
		}
	}

	if act == nil {
		return Action{Kind: Hold, Rationale: "no crossover"}, nil
	}
	return *act, nil
}
