package competition

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/fault"
	"github.com/rustyeddy/arena/pkg/id"
	"github.com/rustyeddy/arena/scoring"
)

type Config struct {
	PromotePct      float64       `yaml:"promote_pct" json:"promote_pct"`           // 0.2
	DemotePct       float64       `yaml:"demote_pct" json:"demote_pct"`             // 0.2
	TierCadence     time.Duration `yaml:"tier_cadence" json:"tier_cadence"`         // 24h
	EliminationRate float64       `yaml:"elimination_rate" json:"elimination_rate"` // 0.5
	PayoutCurve     []float64     `yaml:"payout_curve" json:"payout_curve"`         // 0.5, 0.3, 0.2
	// EliminationCadence is the time between automatic tournament rounds.
	// Zero leaves rounds to EliminationRound callers.
	EliminationCadence time.Duration `yaml:"elimination_cadence" json:"elimination_cadence"`
	Qualification      Qualification `yaml:"qualification" json:"qualification"`
	// MinPromotionRiskScore keeps reckless leaders in their tier. Zero
	// promotes on rank alone.
	MinPromotionRiskScore float64 `yaml:"min_promotion_risk_score" json:"min_promotion_risk_score"`
	// TierPools is the default prize pool for a league entered at each tier.
	TierPools map[string]float64 `yaml:"tier_pools" json:"tier_pools"`
}

func DefaultConfig() Config {
	return Config{
		PromotePct:         0.2,
		DemotePct:          0.2,
		TierCadence:        24 * time.Hour,
		EliminationRate:    0.5,
		EliminationCadence: 24 * time.Hour,
		PayoutCurve:        []float64{0.5, 0.3, 0.2},
		TierPools: map[string]float64{
			"bronze":   1_000,
			"silver":   5_000,
			"gold":     15_000,
			"platinum": 50_000,
		},
	}
}

// Qualification gates tournament entry on the agent's latest snapshot.
// Each zero field disables its check; house tournaments run with the
// values noted.
type Qualification struct {
	MinRiskScore float64 `yaml:"min_risk_score" json:"min_risk_score"` // 65, exclusive
	MaxDrawdown  float64 `yaml:"max_drawdown" json:"max_drawdown"`     // 0.30, exclusive
	MinTrades    int     `yaml:"min_trades" json:"min_trades"`         // 100
}

// check reports why an agent with snap and riskScore may not enter.
func (q Qualification) check(snap scoring.Snapshot, riskScore float64) error {
	switch {
	case q.MinRiskScore > 0 && riskScore <= q.MinRiskScore:
		return fault.New(fault.ErrNotQualified, "risk score %.1f must exceed %.1f", riskScore, q.MinRiskScore)
	case q.MaxDrawdown > 0 && snap.MaxDrawdown >= q.MaxDrawdown:
		return fault.New(fault.ErrNotQualified, "max drawdown %.2f%% must stay under %.2f%%", 100*snap.MaxDrawdown, 100*q.MaxDrawdown)
	case q.MinTrades > 0 && snap.TotalTrades < q.MinTrades:
		return fault.New(fault.ErrNotQualified, "%d trades, needs %d", snap.TotalTrades, q.MinTrades)
	}
	return nil
}

type slot struct {
	mu sync.Mutex
	c  Competition
}

// Engine owns every competition. Each competition has its own lock, so
// ranking one never blocks joining another.
type Engine struct {
	cfg    Config
	reg    *agent.Registry
	scores *scoring.Engine
	now    func() time.Time

	score           ScoreFunc
	tournamentScore ScoreFunc

	mu    sync.RWMutex
	slots map[string]*slot
	// agent id to the competitions it joined
	joined map[string][]string
}

type Option func(*Engine)

// WithScoreFunc replaces the ranking score for every kind of competition.
func WithScoreFunc(f ScoreFunc) Option {
	return func(e *Engine) {
		e.score = f
		e.tournamentScore = f
	}
}

// WithTournamentScoreFunc replaces the ranking score for tournaments only.
func WithTournamentScoreFunc(f ScoreFunc) Option {
	return func(e *Engine) { e.tournamentScore = f }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(reg *agent.Registry, scores *scoring.Engine, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		reg:    reg,
		scores: scores,
		now:    func() time.Time { return time.Now().UTC() },
		slots:  make(map[string]*slot),
		joined: make(map[string][]string),

		score:           RiskAdjustedReturn,
		tournamentScore: TournamentScore,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) slot(compID string) (*slot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.slots[compID]
	if !ok {
		return nil, fault.New(fault.ErrCompetitionNotFound, "competition %q", compID)
	}
	return s, nil
}

// Create registers a pending competition. A league without a prize pool
// gets the default pool for its entry tier.
func (e *Engine) Create(spec Spec) (Competition, error) {
	if err := spec.Validate(); err != nil {
		return Competition{}, err
	}
	pool := spec.PrizePool
	if spec.Kind == League && pool.IsZero() {
		pool = decimal.NewFromFloat(e.cfg.TierPools[spec.Tier.String()])
	}
	c := Competition{
		ID:              id.Prefixed("cmp"),
		Name:            spec.Name,
		Kind:            spec.Kind,
		Status:          Pending,
		Tier:            spec.Tier,
		MaxParticipants: spec.MaxParticipants,
		MinAgents:       spec.MinAgents,
		StartAt:         spec.StartAt,
		EndAt:           spec.EndAt,
		EntryFee:        spec.EntryFee,
		PrizePool:       pool,
		CreatedAt:       e.now(),
	}

	e.mu.Lock()
	e.slots[c.ID] = &slot{c: c}
	e.mu.Unlock()

	logs.Infof("competition=%s created %s %q", c.ID, c.Kind, c.Name)
	return c.clone(), nil
}

// Join adds an agent. Tournaments accept members only while pending and
// only if they meet the qualification rules; leagues until they close.
func (e *Engine) Join(compID, agentID string) error {
	h, err := e.reg.Get(agentID)
	if err != nil {
		return err
	}
	if h.Status().Terminal() {
		return fault.New(fault.ErrAgentTerminal, "agent %q is %s", agentID, h.Status())
	}
	s, err := e.slot(compID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	c := &s.c
	switch {
	case c.Status == Closed:
		s.mu.Unlock()
		return fault.New(fault.ErrCompetitionClosed, "competition %q is closed", compID)
	case c.Kind == Tournament && c.Status != Pending:
		s.mu.Unlock()
		return fault.New(fault.ErrCompetitionClosed, "tournament %q has started", compID)
	}
	if _, ok := c.member(agentID); ok {
		s.mu.Unlock()
		return fault.Validation("agent %q already joined %q", agentID, compID)
	}
	if c.MaxParticipants > 0 && len(c.Members) >= c.MaxParticipants {
		s.mu.Unlock()
		return fault.New(fault.ErrCompetitionFull, "competition %q has %d members", compID, len(c.Members))
	}
	if c.Kind == Tournament {
		snap, _ := e.scores.Latest(agentID)
		if err := e.cfg.Qualification.check(snap, e.riskScore(agentID, snap)); err != nil {
			s.mu.Unlock()
			return fault.Annotate(err, agentID, 0)
		}
	}
	c.Members = append(c.Members, Member{
		AgentID:  agentID,
		JoinedAt: e.now(),
		Seq:      len(c.Members) + 1,
		Tier:     c.Tier,
	})
	c.PrizePool = c.PrizePool.Add(c.EntryFee)
	s.mu.Unlock()

	e.mu.Lock()
	e.joined[agentID] = append(e.joined[agentID], compID)
	e.mu.Unlock()

	logs.Infof("competition=%s agent=%s joined", compID, agentID)
	return nil
}

// Start activates a pending competition once it has MinAgents members.
func (e *Engine) Start(compID string) error {
	s, err := e.slot(compID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.startLocked(&s.c, e.now())
}

func (e *Engine) startLocked(c *Competition, now time.Time) error {
	if c.Status != Pending {
		return fault.Validation("competition %q is %s, not pending", c.ID, c.Status)
	}
	if len(c.Members) < c.MinAgents {
		return fault.Validation("competition %q has %d members, needs %d", c.ID, len(c.Members), c.MinAgents)
	}
	c.Status = Active
	if c.StartAt.IsZero() {
		c.StartAt = now
	}
	c.LastTierChange = now
	c.LastElimination = now
	logs.Infof("competition=%s started with %d members", c.ID, len(c.Members))
	return nil
}

func (e *Engine) Get(compID string) (Competition, error) {
	s, err := e.slot(compID)
	if err != nil {
		return Competition{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.clone(), nil
}

// List returns every competition, oldest first.
func (e *Engine) List() []Competition {
	e.mu.RLock()
	slots := make([]*slot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.mu.RUnlock()

	out := make([]Competition, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, s.c.clone())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Engine) LatestRanking(compID string) (Ranking, bool) {
	s, err := e.slot(compID)
	if err != nil {
		return Ranking{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.c.Rankings); n > 0 {
		return s.c.Rankings[n-1].clone(), true
	}
	return Ranking{}, false
}

// AllowTrading is false for agents in a closed tournament and for agents
// eliminated from a running one.
func (e *Engine) AllowTrading(agentID string) bool {
	e.mu.RLock()
	ids := append([]string(nil), e.joined[agentID]...)
	e.mu.RUnlock()

	for _, compID := range ids {
		s, err := e.slot(compID)
		if err != nil {
			continue
		}
		s.mu.Lock()
		c := &s.c
		allowed := true
		if c.Kind == Tournament {
			if c.Status == Closed {
				allowed = false
			} else if i, ok := c.member(agentID); ok && c.Members[i].Eliminated {
				allowed = false
			}
		}
		s.mu.Unlock()
		if !allowed {
			return false
		}
	}
	return true
}

// Tick advances time-driven transitions. It starts due tournaments and
// closes finished ones, runs elimination rounds at EliminationCadence and
// applies league tier changes at TierCadence.
func (e *Engine) Tick(now time.Time) {
	e.mu.RLock()
	slots := make([]*slot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.mu.RUnlock()

	for _, s := range slots {
		s.mu.Lock()
		c := &s.c
		switch {
		case c.Kind == Tournament && c.Status != Closed && !now.Before(c.EndAt):
			e.closeLocked(c, now)
		case c.Kind == Tournament && c.Status == Pending && !now.Before(c.StartAt):
			if err := e.startLocked(c, now); err != nil {
				logs.Errorf("competition=%s start, err: %+v", c.ID, err)
			}
		case c.Kind == Tournament && c.Status == Active && e.cfg.EliminationCadence > 0 && now.Sub(c.LastElimination) >= e.cfg.EliminationCadence:
			out := e.eliminationLocked(c, now)
			logs.Infof("competition=%s elimination round: %d out", c.ID, len(out))
		case c.Kind == League && c.Status == Active && e.cfg.TierCadence > 0 && now.Sub(c.LastTierChange) >= e.cfg.TierCadence:
			changes := e.tierTransitionsLocked(c, now)
			logs.Infof("competition=%s tier transitions: %d", c.ID, len(changes))
		}
		s.mu.Unlock()
	}
}

// Run calls Tick every interval until done is closed.
func (e *Engine) Run(every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			e.Tick(e.now())
		}
	}
}
