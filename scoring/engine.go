package scoring

import (
	"sort"
	"sync"
)

// Engine caches the latest snapshot per agent for readers such as the
// competition engine.
type Engine struct {
	cfg    Config
	mu     sync.RWMutex
	latest map[string]Snapshot
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, latest: make(map[string]Snapshot)}
}

// Recompute computes and stores a fresh snapshot for h.AgentID.
func (e *Engine) Recompute(h History) Snapshot {
	s := Compute(e.cfg, h)
	e.mu.Lock()
	e.latest[h.AgentID] = s
	e.mu.Unlock()
	return s
}

func (e *Engine) Latest(agentID string) (Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.latest[agentID]
	return s, ok
}

// All returns every cached snapshot ordered by agent id.
func (e *Engine) All() []Snapshot {
	e.mu.RLock()
	out := make([]Snapshot, 0, len(e.latest))
	for _, s := range e.latest {
		out = append(out, s)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
