package agent

import (
	"sync"

	"github.com/rustyeddy/arena/journal"
	"github.com/rustyeddy/arena/order"
)

// State is everything the arena mutates for one agent.
type State struct {
	Agent     Agent
	Positions Book

	// Open orders are awaiting fills at the exchange, keyed by order id.
	OpenOrders map[string]*order.Order
	Orders     []*order.Order

	Trades []journal.TradeRecord
	Equity []journal.EquitySnapshot

	// LastRejection is fed back to the decider on its next call.
	LastRejection string
	Cycle         uint64
}

// AppendTrade stamps rec with the next sequence number and appends it.
// Times never go backwards within one agent's history.
func (s *State) AppendTrade(rec journal.TradeRecord) journal.TradeRecord {
	rec.AgentID = s.Agent.ID
	rec.Seq = uint64(len(s.Trades)) + 1
	if n := len(s.Trades); n > 0 && rec.Time.Before(s.Trades[n-1].Time) {
		rec.Time = s.Trades[n-1].Time
	}
	s.Trades = append(s.Trades, rec)
	return rec
}

func (s *State) AppendEquity(e journal.EquitySnapshot) {
	e.AgentID = s.Agent.ID
	if n := len(s.Equity); n > 0 && e.Time.Before(s.Equity[n-1].Time) {
		e.Time = s.Equity[n-1].Time
	}
	s.Equity = append(s.Equity, e)
}

func (s *State) clone() State {
	cp := State{
		Agent:         s.Agent.clone(),
		Positions:     s.Positions.Clone(),
		OpenOrders:    make(map[string]*order.Order, len(s.OpenOrders)),
		Orders:        make([]*order.Order, len(s.Orders)),
		Trades:        append([]journal.TradeRecord(nil), s.Trades...),
		Equity:        append([]journal.EquitySnapshot(nil), s.Equity...),
		LastRejection: s.LastRejection,
		Cycle:         s.Cycle,
	}
	for k, o := range s.OpenOrders {
		cp.OpenOrders[k] = o.Clone()
	}
	for i, o := range s.Orders {
		cp.Orders[i] = o.Clone()
	}
	return cp
}

// Handle is the single mutation path for one agent. Everything that
// changes agent state, including forced liquidation, goes through Do.
type Handle struct {
	mu    sync.Mutex
	state State
}

func newHandle(a Agent) *Handle {
	if a.Capital == 0 {
		a.Capital = a.InitialCapital
	}
	if a.PeakCapital < a.Capital {
		a.PeakCapital = a.Capital
	}
	if a.Status == "" {
		a.Status = Active
	}
	return &Handle{state: State{
		Agent:      a,
		Positions:  make(Book),
		OpenOrders: make(map[string]*order.Order),
	}}
}

func (h *Handle) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Agent.ID
}

// Do runs fn with exclusive access to the agent's state.
func (h *Handle) Do(fn func(*State) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(&h.state)
}

// View returns a deep copy of the current state.
func (h *Handle) View() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.clone()
}

// Agent returns a copy of the agent record.
func (h *Handle) Agent() Agent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Agent.clone()
}

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Agent.Status
}
