// Package config loads the arena's YAML configuration and overlays
// secrets from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/broker/sim"
	"github.com/rustyeddy/arena/competition"
	"github.com/rustyeddy/arena/decision"
	"github.com/rustyeddy/arena/journal"
	"github.com/rustyeddy/arena/risk"
	"github.com/rustyeddy/arena/scheduler"
	"github.com/rustyeddy/arena/scoring"
)

// Config is the complete arena configuration.
type Config struct {
	Scheduler    scheduler.Config    `json:"scheduler" yaml:"scheduler"`
	Risk         risk.Config         `json:"risk" yaml:"risk"`
	Scoring      scoring.Config      `json:"scoring" yaml:"scoring"`
	Competition  competition.Config  `json:"competition" yaml:"competition"`
	Journal      JournalConfig       `json:"journal" yaml:"journal"`
	LLM          decision.LLMConfig  `json:"llm" yaml:"llm"`
	Rule         decision.RuleConfig `json:"rule" yaml:"rule"`
	Market       MarketConfig        `json:"market" yaml:"market"`
	Metrics      MetricsConfig       `json:"metrics" yaml:"metrics"`
	Profiling    ProfilingConfig     `json:"profiling" yaml:"profiling"`
	Agents       []AgentConfig       `json:"agents" yaml:"agents"`
	Competitions []CompetitionConfig `json:"competitions,omitempty" yaml:"competitions,omitempty"`
}

// JournalConfig selects the ledger backend.
type JournalConfig struct {
	Type string `json:"type" yaml:"type"` // "sqlite", "csv", "postgres" or "none"
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // sqlite file
	Dir  string `json:"dir,omitempty" yaml:"dir,omitempty"`   // csv directory
	DSN  string `json:"-" yaml:"-"`                           // postgres, from ARENA_JOURNAL_DSN
}

// MarketConfig seeds the simulated exchange and its random walk.
type MarketConfig struct {
	Symbols      []SymbolConfig `json:"symbols" yaml:"symbols"`
	Seed         int64          `json:"seed" yaml:"seed"`
	TickInterval time.Duration  `json:"tick_interval" yaml:"tick_interval"`
	Volatility   float64        `json:"volatility" yaml:"volatility"` // per-step stddev of returns
	FeeRate      float64        `json:"fee_rate" yaml:"fee_rate"`
	SlippageBps  float64        `json:"slippage_bps" yaml:"slippage_bps"`
	MaxFillQty   float64        `json:"max_fill_qty" yaml:"max_fill_qty"`
	Leverage     float64        `json:"leverage" yaml:"leverage"`
}

type SymbolConfig struct {
	Symbol string  `json:"symbol" yaml:"symbol"`
	Price  float64 `json:"price" yaml:"price"`
}

func (m MarketConfig) Sim() sim.Config {
	return sim.Config{FeeRate: m.FeeRate, SlippageBps: m.SlippageBps, MaxFillQty: m.MaxFillQty, Leverage: m.Leverage}
}

// Prices returns the starting mark per symbol.
func (m MarketConfig) Prices() map[string]float64 {
	out := make(map[string]float64, len(m.Symbols))
	for _, s := range m.Symbols {
		out[s.Symbol] = s.Price
	}
	return out
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"` // empty disables the endpoint
}

type ProfilingConfig struct {
	ServerAddress   string `json:"server_address" yaml:"server_address"` // empty disables profiling
	ApplicationName string `json:"application_name" yaml:"application_name"`
}

// AgentConfig seeds one agent at startup.
type AgentConfig struct {
	ID      string            `json:"id" yaml:"id"`
	OwnerID string            `json:"owner_id" yaml:"owner_id"`
	Name    string            `json:"name" yaml:"name"`
	Profile agent.ProfileName `json:"profile" yaml:"profile"`
	Symbols []string          `json:"symbols" yaml:"symbols"`
	Decider string            `json:"decider" yaml:"decider"`
	Capital float64           `json:"capital" yaml:"capital"`
}

func (a AgentConfig) Agent() (agent.Agent, error) {
	p, err := agent.Profile(a.Profile)
	if err != nil {
		return agent.Agent{}, fmt.Errorf("agent %s: %w", a.ID, err)
	}
	name := a.Name
	if name == "" {
		name = a.ID
	}
	return agent.Agent{
		ID:             a.ID,
		OwnerID:        a.OwnerID,
		Name:           name,
		Profile:        p,
		Symbols:        append([]string(nil), a.Symbols...),
		Decider:        a.Decider,
		InitialCapital: a.Capital,
	}, nil
}

// CompetitionConfig seeds one competition. Tournament windows are relative
// to process start.
type CompetitionConfig struct {
	Name            string        `json:"name" yaml:"name"`
	Kind            string        `json:"kind" yaml:"kind"`
	Tier            string        `json:"tier,omitempty" yaml:"tier,omitempty"`
	MaxParticipants int           `json:"max_participants" yaml:"max_participants"`
	MinAgents       int           `json:"min_agents" yaml:"min_agents"`
	StartIn         time.Duration `json:"start_in" yaml:"start_in"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
	EntryFee        float64       `json:"entry_fee" yaml:"entry_fee"`
	PrizePool       float64       `json:"prize_pool" yaml:"prize_pool"`
	Members         []string      `json:"members" yaml:"members"`
}

func (c CompetitionConfig) Spec(now time.Time) (competition.Spec, error) {
	spec := competition.Spec{
		Name:            c.Name,
		Kind:            competition.Kind(strings.ToLower(c.Kind)),
		MaxParticipants: c.MaxParticipants,
		MinAgents:       c.MinAgents,
		EntryFee:        decimal.NewFromFloat(c.EntryFee),
		PrizePool:       decimal.NewFromFloat(c.PrizePool),
	}
	if c.Tier != "" {
		t, err := competition.ParseTier(c.Tier)
		if err != nil {
			return competition.Spec{}, err
		}
		spec.Tier = t
	}
	if spec.Kind == competition.Tournament {
		spec.StartAt = now.Add(c.StartIn)
		spec.EndAt = spec.StartAt.Add(c.Duration)
	}
	return spec, spec.Validate()
}

// LoadFromFile loads configuration from a file (YAML, falling back to
// JSON), applies the environment overlay and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	cfg.Agents = nil
	cfg.Competitions = nil

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.LoadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEnv reads a .env file when present, then overrides secrets and
// addresses from ARENA_* variables.
func (c *Config) LoadEnv() {
	_ = godotenv.Load()

	if val := os.Getenv("ARENA_LLM_API_KEY"); val != "" {
		c.LLM.APIKey = val
	}
	if val := os.Getenv("ARENA_LLM_BASE_URL"); val != "" {
		c.LLM.BaseURL = val
	}
	if val := os.Getenv("ARENA_LLM_MODEL"); val != "" {
		c.LLM.Model = val
	}
	if val := os.Getenv("ARENA_LLM_MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.LLM.MaxTokens = v
		}
	}
	if val := os.Getenv("ARENA_JOURNAL_DSN"); val != "" {
		c.Journal.DSN = val
	}
	if val := os.Getenv("ARENA_JOURNAL_PATH"); val != "" {
		c.Journal.Path = val
	}
	if val := os.Getenv("ARENA_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}
	if val := os.Getenv("ARENA_PYROSCOPE_ADDR"); val != "" {
		c.Profiling.ServerAddress = val
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	s := c.Scheduler
	if s.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if s.MaxAttempts <= 0 {
		return fmt.Errorf("scheduler.max_attempts must be positive")
	}
	if s.MaxDailyTrades < 0 || s.MinTimeBetweenTrades < 0 {
		return fmt.Errorf("scheduler rate limits must be non-negative")
	}
	if c.Risk.MinMarginRatio < 0 || c.Risk.MinMarginRatio >= 1 {
		return fmt.Errorf("risk.min_margin_ratio must be in [0, 1)")
	}
	if c.Risk.MinOrderQty < 0 {
		return fmt.Errorf("risk.min_order_qty must be non-negative")
	}
	if c.Scoring.AnnualizationFactor <= 0 {
		return fmt.Errorf("scoring.annualization_factor must be positive")
	}
	if c.Competition.PromotePct < 0 || c.Competition.DemotePct < 0 || c.Competition.PromotePct+c.Competition.DemotePct >= 1 {
		return fmt.Errorf("competition promote_pct and demote_pct must be non-negative and sum to less than 1")
	}
	if c.Competition.EliminationRate < 0 || c.Competition.EliminationRate >= 1 {
		return fmt.Errorf("competition.elimination_rate must be in [0, 1)")
	}
	if c.Competition.MinPromotionRiskScore < 0 || c.Competition.MinPromotionRiskScore > 100 {
		return fmt.Errorf("competition.min_promotion_risk_score must be in [0, 100]")
	}
	if c.Competition.EliminationCadence < 0 {
		return fmt.Errorf("competition.elimination_cadence must be non-negative")
	}
	if q := c.Competition.Qualification; q.MinRiskScore < 0 || q.MinRiskScore > 100 || q.MaxDrawdown < 0 || q.MaxDrawdown > 1 || q.MinTrades < 0 {
		return fmt.Errorf("competition.qualification needs min_risk_score in [0, 100], max_drawdown in [0, 1] and non-negative min_trades")
	}

	switch c.Journal.Type {
	case "none":
	case "sqlite":
		if c.Journal.Path == "" {
			return fmt.Errorf("journal path required for sqlite type")
		}
	case "csv":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal dir required for csv type")
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("ARENA_JOURNAL_DSN required for postgres type")
		}
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv', 'postgres' or 'none'")
	}

	quoted := make(map[string]bool, len(c.Market.Symbols))
	for _, s := range c.Market.Symbols {
		if s.Symbol == "" || s.Price <= 0 {
			return fmt.Errorf("market symbol %q needs a positive price", s.Symbol)
		}
		quoted[s.Symbol] = true
	}
	if c.Market.TickInterval <= 0 {
		return fmt.Errorf("market.tick_interval must be positive")
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, ac := range c.Agents {
		if seen[ac.ID] {
			return fmt.Errorf("duplicate agent id %q", ac.ID)
		}
		seen[ac.ID] = true
		a, err := ac.Agent()
		if err != nil {
			return err
		}
		if err := a.Validate(); err != nil {
			return err
		}
		for _, sym := range a.Symbols {
			if !quoted[sym] {
				return fmt.Errorf("agent %s trades unknown symbol %q", a.ID, sym)
			}
		}
		if strings.EqualFold(ac.Decider, "llm") && c.LLM.Model == "" {
			return fmt.Errorf("agent %s uses the llm decider but llm.model is empty", a.ID)
		}
	}

	for _, cc := range c.Competitions {
		if _, err := cc.Spec(time.Now()); err != nil {
			return err
		}
		for _, m := range cc.Members {
			if !seen[m] {
				return fmt.Errorf("competition %q lists unknown agent %q", cc.Name, m)
			}
		}
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scheduler:   scheduler.DefaultConfig(),
		Risk:        risk.DefaultConfig(),
		Scoring:     scoring.DefaultConfig(),
		Competition: competition.DefaultConfig(),
		Journal: JournalConfig{
			Type: "sqlite",
			Path: "./arena.db",
		},
		LLM: decision.LLMConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 512,
		},
		Rule: decision.DefaultRuleConfig(),
		Market: MarketConfig{
			Symbols: []SymbolConfig{
				{Symbol: "BTC-USDT", Price: 65_000},
				{Symbol: "ETH-USDT", Price: 3_200},
			},
			Seed:         1,
			TickInterval: time.Second,
			Volatility:   0.002,
			FeeRate:      0.0005,
			Leverage:     10,
		},
		Profiling: ProfilingConfig{ApplicationName: "arena"},
		Agents: []AgentConfig{
			{ID: "steady", OwnerID: "house", Profile: agent.Conservative, Symbols: []string{"BTC-USDT"}, Decider: "rule", Capital: 10_000},
			{ID: "swing", OwnerID: "house", Profile: agent.Moderate, Symbols: []string{"BTC-USDT", "ETH-USDT"}, Decider: "rule", Capital: 10_000},
			{ID: "idle", OwnerID: "house", Profile: agent.Aggressive, Symbols: []string{"ETH-USDT"}, Decider: "hold", Capital: 10_000},
		},
		Competitions: []CompetitionConfig{
			{Name: "house league", Kind: "league", Tier: "bronze", Members: []string{"steady", "swing", "idle"}},
		},
	}
}

// Open builds the configured journal backend.
func (j JournalConfig) Open() (journal.Journal, error) {
	switch j.Type {
	case "sqlite":
		db, err := journal.NewSQLite(j.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "csv":
		w, err := journal.NewCSV(j.Dir)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "postgres":
		pg, err := journal.NewPostgres(journal.PostgresOption{ConnString: j.DSN})
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "none", "":
		return journal.Discard, nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", j.Type)
	}
}
