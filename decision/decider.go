// Package decision holds the trading decision capability. Agents pick a
// variant by name; the scheduler only sees the Decider interface.
package decision

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/fault"
	"github.com/rustyeddy/arena/market"
	"github.com/rustyeddy/arena/order"
)

type Kind string

const (
	Buy  Kind = "buy"
	Sell Kind = "sell"
	Hold Kind = "hold"
)

// Action is a decider's proposal. Size 0 lets the risk manager size it.
type Action struct {
	Kind       Kind    `json:"action"`
	Symbol     string  `json:"symbol"`
	Size       float64 `json:"size"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	Rationale  string  `json:"rationale"`
}

// Request converts a buy or sell into an order request. Holds return false.
func (a Action) Request() (order.Request, bool) {
	var side order.Side
	switch a.Kind {
	case Buy:
		side = order.Buy
	case Sell:
		side = order.Sell
	default:
		return order.Request{}, false
	}
	req := order.Request{
		Symbol:   a.Symbol,
		Side:     side,
		Type:     order.Market,
		Quantity: a.Size,
		Reason:   a.Rationale,
	}
	if a.LimitPrice > 0 {
		req.Type = order.Limit
		req.LimitPrice = a.LimitPrice
	}
	return req, true
}

// Context is what a decider sees each cycle.
type Context struct {
	AgentID       string
	Time          time.Time
	Capital       float64
	Profile       agent.RiskProfile
	Quotes        map[string]market.Quote
	Positions     []agent.Position
	LastRejection string
}

// Symbols returns the quoted symbols in a stable order.
func (c Context) Symbols() []string {
	out := make([]string, 0, len(c.Quotes))
	for s := range c.Quotes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c Context) Position(symbol string) (agent.Position, bool) {
	for _, p := range c.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return agent.Position{}, false
}

type Decider interface {
	Decide(ctx context.Context, dc Context) (Action, error)
}

// Func adapts a function to a Decider.
type Func func(ctx context.Context, dc Context) (Action, error)

func (f Func) Decide(ctx context.Context, dc Context) (Action, error) { return f(ctx, dc) }

// Holder never trades.
type Holder struct{}

func (Holder) Decide(context.Context, Context) (Action, error) {
	return Action{Kind: Hold, Rationale: "hold"}, nil
}

// Factory builds a decider for one agent. Stateful variants keep per-agent
// state, so every agent gets its own instance.
type Factory func(a agent.Agent) (Decider, error)

// Resolver maps decider names to factories.
type Resolver struct {
	factories map[string]Factory
}

func NewResolver() *Resolver {
	r := &Resolver{factories: make(map[string]Factory)}
	r.Register("hold", func(agent.Agent) (Decider, error) { return Holder{}, nil })
	r.Register("rule", func(agent.Agent) (Decider, error) { return NewRule(DefaultRuleConfig()), nil })
	return r
}

func (r *Resolver) Register(name string, f Factory) {
	r.factories[strings.ToLower(name)] = f
}

// Resolve builds the decider named by a.Decider. An empty name holds.
func (r *Resolver) Resolve(a agent.Agent) (Decider, error) {
	name := strings.ToLower(a.Decider)
	if name == "" {
		name = "hold"
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fault.Validation("agent %s: unknown decider %q", a.ID, a.Decider)
	}
	d, err := f(a)
	if err != nil {
		return nil, fmt.Errorf("build decider %q for %s: %w", name, a.ID, err)
	}
	return d, nil
}
