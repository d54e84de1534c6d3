// Package broker defines the exchange collaborator the scheduler trades
// through.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/order"
)

var (
	ErrUnknownOrder   = errors.New("unknown order")
	ErrUnknownAccount = errors.New("unknown account")
)

// Exchange executes orders for agents. Fills arrive asynchronously; callers
// drain them with Updates until the order reaches a terminal status.
type Exchange interface {
	Submit(ctx context.Context, s Submission) (exchangeOrderID string, err error)
	Updates(ctx context.Context, exchangeOrderID string) ([]Update, error)
	Cancel(ctx context.Context, exchangeOrderID string) error
	AccountState(ctx context.Context, agentID string) (Account, error)
}

// Submission is an approved order handed to the exchange.
type Submission struct {
	OrderID string
	AgentID string
	Request order.Request
}

// Update reports one change to an order. Fill updates carry the quantity
// and price of that fill only, never cumulative totals.
type Update struct {
	OrderID   string
	Status    order.Status
	FillQty   float64
	FillPrice float64
	Fee       float64
	Reason    string
	Time      time.Time
}

func (u Update) IsFill() bool { return u.FillQty > 0 }

// Account is the exchange's view of an agent's money and positions.
type Account struct {
	AgentID    string
	Balance    float64
	Capital    float64 // balance plus unrealized P&L
	MarginUsed float64
	FreeMargin float64
	Positions  []agent.Position
	Time       time.Time
}

func (a Account) Book() agent.Book { return agent.BookOf(a.Positions) }
