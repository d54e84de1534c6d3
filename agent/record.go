package agent

import "github.com/rustyeddy/arena/journal"

// Record renders a for persistence.
func (a Agent) Record() journal.AgentRecord {
	return journal.AgentRecord{
		ID:             a.ID,
		OwnerID:        a.OwnerID,
		Name:           a.Name,
		Profile:        string(a.Profile.Name),
		Symbols:        append([]string(nil), a.Symbols...),
		Decider:        a.Decider,
		InitialCapital: a.InitialCapital,
		Capital:        a.Capital,
		PeakCapital:    a.PeakCapital,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
	}
}

// Restore carries persisted capital, peak and status onto a. A liquidated
// agent stays liquidated across restarts.
func (a *Agent) Restore(rec journal.AgentRecord) {
	if rec.ID != a.ID {
		return
	}
	a.Capital = rec.Capital
	a.PeakCapital = rec.PeakCapital
	if !rec.CreatedAt.IsZero() {
		a.CreatedAt = rec.CreatedAt
	}
	switch s := Status(rec.Status); s {
	case Active, Paused, Stopped, Liquidated:
		a.Status = s
	}
}
