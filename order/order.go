package order

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/arena/fault"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type Type string

const (
	Market Type = "MARKET"
	Limit  Type = "LIMIT"
)

// Request is what a decider proposes. A zero Quantity asks the risk manager
// to size the order.
type Request struct {
	Symbol     string
	Side       Side
	Type       Type
	Quantity   float64
	LimitPrice float64
	Reason     string
}

func (r Request) Validate() error {
	if r.Symbol == "" {
		return fault.Validation("order symbol is required")
	}
	if r.Side != Buy && r.Side != Sell {
		return fault.Validation("unknown order side %q", r.Side)
	}
	if math.IsNaN(r.Quantity) || r.Quantity < 0 {
		return fault.Validation("order quantity must not be negative, got %v", r.Quantity)
	}
	switch r.Type {
	case Market:
	case Limit:
		if r.LimitPrice <= 0 {
			return fault.Validation("limit order needs a positive limit price")
		}
	default:
		return fault.Validation("unknown order type %q", r.Type)
	}
	return nil
}

// Transition is one timestamped step in an order's lifecycle.
type Transition struct {
	From   Status
	To     Status
	At     time.Time
	Reason string
}

// Order is the arena's view of a single order. The Request is copied in
// and never changes after submission.
type Order struct {
	ID         string
	AgentID    string
	ExchangeID string
	Request    Request

	Status       Status
	FilledQty    float64
	AvgFillPrice float64
	Reason       string

	CreatedAt   time.Time
	Transitions []Transition
}

// New creates an order in the Proposed state.
func New(id, agentID string, req Request, at time.Time) *Order {
	return &Order{
		ID:        id,
		AgentID:   agentID,
		Request:   req,
		Status:    Proposed,
		CreatedAt: at,
	}
}

func (o *Order) LeavesQty() float64 {
	l := o.Request.Quantity - o.FilledQty
	if l < qtyEpsilon {
		return 0
	}
	return l
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s %.6g %s [%s]",
		o.ID, o.Request.Side, o.Request.Symbol, o.Request.Quantity, o.Request.Type, o.Status)
}

// Clone returns a deep copy safe to hand to readers.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Transitions = append([]Transition(nil), o.Transitions...)
	return &cp
}
