package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/arena/fault"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMarket(qty float64) *Order {
	return New("O1", "A1", Request{Symbol: "BTC-USD", Side: Buy, Type: Market, Quantity: qty}, t0)
}

func submitted(t *testing.T, qty float64) *Order {
	t.Helper()
	o := newMarket(qty)
	require.NoError(t, o.Approve(qty, t0, ""))
	require.NoError(t, o.Transition(Submitted, t0, ""))
	return o
}

func TestHappyPath(t *testing.T) {
	t.Parallel()

	o := submitted(t, 2)
	require.NoError(t, o.ApplyFill(0.5, 100, t0.Add(time.Second)))
	assert.Equal(t, PartiallyFilled, o.Status)
	assert.InDelta(t, 1.5, o.LeavesQty(), 1e-12)

	require.NoError(t, o.ApplyFill(1.5, 104, t0.Add(2*time.Second)))
	assert.Equal(t, Filled, o.Status)
	assert.InDelta(t, 2.0, o.FilledQty, 1e-12)
	assert.InDelta(t, 103.0, o.AvgFillPrice, 1e-12)
	assert.Len(t, o.Transitions, 4)
	assert.Equal(t, Proposed, o.Transitions[0].From)
}

func TestTerminalStatesNeverTransition(t *testing.T) {
	t.Parallel()

	all := []Status{Proposed, RiskApproved, RiskRejected, Submitted, PartiallyFilled, Filled, Cancelled, ExchangeRejected}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			o := newMarket(1)
			o.Status = from
			err := o.Transition(to, t0, "")
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			assert.Equal(t, from, o.Status)
		}
	}
}

func TestRejectedCannotBeSubmitted(t *testing.T) {
	t.Parallel()

	o := newMarket(1)
	require.NoError(t, o.Transition(RiskRejected, t0, "LeverageExceeded"))
	assert.ErrorIs(t, o.Transition(Submitted, t0, ""), ErrInvalidTransition)
	assert.Equal(t, "LeverageExceeded", o.Reason)
}

func TestProposedCannotSkipRisk(t *testing.T) {
	t.Parallel()

	o := newMarket(1)
	assert.ErrorIs(t, o.Transition(Submitted, t0, ""), ErrInvalidTransition)
	assert.ErrorIs(t, o.ApplyFill(1, 100, t0), ErrInvalidTransition)
}

func TestApplyFillRejectsBadFills(t *testing.T) {
	t.Parallel()

	o := submitted(t, 1)
	assert.ErrorIs(t, o.ApplyFill(0, 100, t0), ErrInvalidFill)
	assert.ErrorIs(t, o.ApplyFill(1, 0, t0), ErrInvalidFill)
	assert.ErrorIs(t, o.ApplyFill(1.5, 100, t0), ErrInvalidFill)
	assert.Equal(t, Submitted, o.Status)
}

func TestPartiallyFilledCanBeCancelled(t *testing.T) {
	t.Parallel()

	o := submitted(t, 1)
	require.NoError(t, o.ApplyFill(0.25, 100, t0))
	require.NoError(t, o.Transition(Cancelled, t0, "timeout"))
	assert.True(t, o.Status.Terminal())
	assert.InDelta(t, 0.25, o.FilledQty, 1e-12)
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	o := submitted(t, 1)
	cp := o.Clone()
	require.NoError(t, o.ApplyFill(1, 100, t0))
	assert.Equal(t, Submitted, cp.Status)
	assert.Len(t, cp.Transitions, 2)
}

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"market", Request{Symbol: "ETH", Side: Buy, Type: Market, Quantity: 1}, false},
		{"size me", Request{Symbol: "ETH", Side: Sell, Type: Market}, false},
		{"negative", Request{Symbol: "ETH", Side: Buy, Type: Market, Quantity: -1}, true},
		{"no symbol", Request{Side: Buy, Type: Market, Quantity: 1}, true},
		{"bad side", Request{Symbol: "ETH", Side: "HOLD", Type: Market, Quantity: 1}, true},
		{"limit no price", Request{Symbol: "ETH", Side: Buy, Type: Limit, Quantity: 1}, true},
		{"limit", Request{Symbol: "ETH", Side: Buy, Type: Limit, Quantity: 1, LimitPrice: 10}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, fault.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}
