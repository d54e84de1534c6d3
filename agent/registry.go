package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/arena/fault"
)

// Registry owns every agent in the arena. It is created once at startup
// and handed to the scheduler and competition engine.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Handle
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Handle)}
}

// Create registers a new agent. Capital and peak default to the initial
// capital and status defaults to active.
func (r *Registry) Create(a Agent) (*Handle, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fault.Validation("registry is closed")
	}
	if _, ok := r.agents[a.ID]; ok {
		return nil, fault.Validation("agent %q already exists", a.ID)
	}
	h := newHandle(a)
	r.agents[a.ID] = h
	return h, nil
}

func (r *Registry) Get(id string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.agents[id]
	if !ok {
		return nil, fault.New(fault.ErrAgentNotFound, "agent %q", id)
	}
	return h, nil
}

// List returns all handles ordered by agent id.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	out := make([]*Handle, 0, len(ids))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if h, ok := r.agents[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Pause, Resume and Stop change the requested status. The scheduler
// observes it at the start of the agent's next cycle.
func (r *Registry) Pause(id string) error  { return r.setStatus(id, Paused) }
func (r *Registry) Resume(id string) error { return r.setStatus(id, Active) }
func (r *Registry) Stop(id string) error   { return r.setStatus(id, Stopped) }

func (r *Registry) setStatus(id string, s Status) error {
	h, err := r.Get(id)
	if err != nil {
		return err
	}
	return h.Do(func(st *State) error {
		if st.Agent.Status.Terminal() {
			return fault.New(fault.ErrAgentTerminal, "agent %q is %s", id, st.Agent.Status)
		}
		st.Agent.Status = s
		return nil
	})
}

// Close stops accepting new agents. Existing handles stay readable.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
