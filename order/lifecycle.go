package order

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill")
)

const qtyEpsilon = 1e-9

type Status uint8

const (
	Proposed Status = iota
	RiskApproved
	RiskRejected
	Submitted
	PartiallyFilled
	Filled
	Cancelled
	ExchangeRejected
)

var statusNames = [...]string{
	Proposed:         "Proposed",
	RiskApproved:     "RiskApproved",
	RiskRejected:     "RiskRejected",
	Submitted:        "Submitted",
	PartiallyFilled:  "PartiallyFilled",
	Filled:           "Filled",
	Cancelled:        "Cancelled",
	ExchangeRejected: "ExchangeRejected",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	switch s {
	case Filled, Cancelled, ExchangeRejected, RiskRejected:
		return true
	default:
		return false
	}
}

// Open reports whether the order sits at the exchange awaiting fills.
func (s Status) Open() bool {
	return s == Submitted || s == PartiallyFilled
}

var allowed = map[Status][]Status{
	Proposed:        {RiskApproved, RiskRejected},
	RiskApproved:    {Submitted},
	Submitted:       {PartiallyFilled, Filled, Cancelled, ExchangeRejected},
	PartiallyFilled: {PartiallyFilled, Filled, Cancelled},
}

func canMove(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the order to status `to`, recording the step.
func (o *Order) Transition(to Status, at time.Time, reason string) error {
	if o.Status.Terminal() || !canMove(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s (order %s)", ErrInvalidTransition, o.Status, to, o.ID)
	}
	o.Transitions = append(o.Transitions, Transition{From: o.Status, To: to, At: at, Reason: reason})
	o.Status = to
	if reason != "" {
		o.Reason = reason
	}
	return nil
}

// Approve records the risk manager's approval, possibly with an adjusted
// quantity. The request is still mutable here since nothing has been sent.
func (o *Order) Approve(qty float64, at time.Time, reason string) error {
	if o.Status != Proposed {
		return fmt.Errorf("%w: approve from %s", ErrInvalidTransition, o.Status)
	}
	o.Request.Quantity = qty
	return o.Transition(RiskApproved, at, reason)
}

// ApplyFill accumulates a fill. Reaching the requested quantity moves the
// order to Filled; anything less leaves it PartiallyFilled.
func (o *Order) ApplyFill(qty, price float64, at time.Time) error {
	if !o.Status.Open() {
		return fmt.Errorf("%w: fill on %s order %s", ErrInvalidTransition, o.Status, o.ID)
	}
	if qty <= 0 || price <= 0 {
		return fmt.Errorf("%w: qty=%v price=%v", ErrInvalidFill, qty, price)
	}
	if qty > o.LeavesQty()+qtyEpsilon {
		return fmt.Errorf("%w: fill %v exceeds leaves %v", ErrInvalidFill, qty, o.LeavesQty())
	}

	total := o.FilledQty + qty
	o.AvgFillPrice = (o.AvgFillPrice*o.FilledQty + price*qty) / total
	o.FilledQty = total

	next := PartiallyFilled
	if o.LeavesQty() == 0 {
		next = Filled
	}
	return o.Transition(next, at, "")
}
