package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/broker"
	"github.com/rustyeddy/arena/fault"
	"github.com/rustyeddy/arena/market"
	"github.com/rustyeddy/arena/order"
)

type Verdict string

const (
	Approve Verdict = "approve"
	Adjust  Verdict = "adjust"
	Reject  Verdict = "reject"
)

type Violation struct {
	Code string
	Msg  string
}

// Decision is the outcome of one evaluation. Quantity is the size the
// order may be submitted with; it is zero on Reject.
type Decision struct {
	Verdict    Verdict
	Quantity   float64
	Violations []Violation

	TargetQty         float64
	ProjectedLeverage float64
	MarginRatio       float64

	err error
}

func (d *Decision) add(sentinel *fault.Error, msg string) {
	d.Violations = append(d.Violations, Violation{Code: sentinel.Code, Msg: msg})
	d.Verdict = Reject
	d.Quantity = 0
	if d.err == nil {
		d.err = fault.New(sentinel, "%s", msg)
	}
}

func (d Decision) Allowed() bool { return d.Verdict != Reject }

// Err is the classified error for a rejection, nil otherwise.
func (d Decision) Err() error { return d.err }

// Reason is the code of the first violation, or "".
func (d Decision) Reason() string {
	if len(d.Violations) == 0 {
		return ""
	}
	return d.Violations[0].Code
}

// Manager evaluates proposed orders against an agent's risk profile.
// Evaluate never mutates state, so calling it twice with the same inputs
// yields the same Decision.
type Manager struct {
	cfg Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

func (m *Manager) Config() Config { return m.cfg }

// TargetQuantity is the default size for symbol: the profile's risk per
// trade of capital, scaled down in volatile markets and clamped to the
// per-symbol cap.
func (m *Manager) TargetQuantity(a agent.Agent, capital float64, q market.Quote) float64 {
	if q.MarkPrice <= 0 || capital <= 0 {
		return 0
	}
	capQty := a.Profile.MaxPositionPct * capital / q.MarkPrice
	target := a.Profile.RiskPerTrade * capital / m.cfg.volScalar(q.Volatility) / q.MarkPrice
	return clamp(target, 0, capQty)
}

func (m *Manager) Evaluate(a agent.Agent, req order.Request, acct broker.Account, q market.Quote) Decision {
	d := Decision{Verdict: Approve, Quantity: req.Quantity}

	if err := req.Validate(); err != nil {
		d.Violations = append(d.Violations, Violation{Code: fault.ErrValidation.Code, Msg: err.Error()})
		d.Verdict, d.Quantity, d.err = Reject, 0, err
		return d
	}
	if q.MarkPrice <= 0 || math.IsNaN(q.MarkPrice) {
		err := fault.Validation("no usable mark price for %s", req.Symbol)
		d.Violations = append(d.Violations, Violation{Code: fault.ErrValidation.Code, Msg: err.Error()})
		d.Verdict, d.Quantity, d.err = Reject, 0, err
		return d
	}

	capital := acct.Capital
	if capital <= 0 {
		capital = a.Capital
	}
	mark := q.MarkPrice
	book := acct.Book()
	s0 := book.Signed(req.Symbol)

	// Sizing
	capQty := a.Profile.MaxPositionPct * capital / mark
	d.TargetQty = m.TargetQuantity(a, capital, q)
	if d.Quantity == 0 {
		d.Quantity = d.TargetQty
	}
	bound := math.Max(0, capQty-s0)
	if req.Side == order.Sell {
		bound = math.Max(0, s0+capQty)
	}
	if d.Quantity > bound {
		d.Quantity = bound
		d.Verdict = Adjust
	}
	if minQty := m.cfg.minQty(req.Symbol); d.Quantity < minQty {
		d.add(fault.ErrSizeTooSmall, fmt.Sprintf("size %.6g below exchange minimum %.6g for %s", d.Quantity, minQty, req.Symbol))
		return d
	}

	// Projected book after the fill at mark.
	s1 := s0 + req.Side.Sign()*d.Quantity
	other := book.Notional()
	if p, ok := book[req.Symbol]; ok {
		other -= p.Notional()
	}
	projected := other + math.Abs(s1)*mark
	increases := math.Abs(s1) > math.Abs(s0)+1e-12

	if capital > 0 {
		d.ProjectedLeverage = projected / capital
	} else {
		d.ProjectedLeverage = math.Inf(1)
	}
	if projected > 0 {
		d.MarginRatio = capital / projected
	}

	if !increases {
		return d
	}

	// Leverage
	if d.ProjectedLeverage > a.Profile.MaxLeverage {
		d.add(fault.ErrLeverageExceeded, fmt.Sprintf("projected leverage %.2fx exceeds max %.2fx",
			d.ProjectedLeverage, a.Profile.MaxLeverage))
		return d
	}

	// Margin
	if d.MarginRatio < m.cfg.MinMarginRatio {
		d.add(fault.ErrInsufficientMargin, fmt.Sprintf("margin ratio %.2f%% below minimum %.2f%%",
			100*d.MarginRatio, 100*m.cfg.MinMarginRatio))
		return d
	}
	free := acct.FreeMargin
	if free == 0 && acct.MarginUsed == 0 {
		free = capital
	}
	initial := (math.Abs(s1) - math.Abs(s0)) * mark / a.Profile.MaxLeverage
	if initial > free {
		d.add(fault.ErrInsufficientMargin, fmt.Sprintf("initial margin %.2f exceeds free margin %.2f", initial, free))
		return d
	}

	return d
}
