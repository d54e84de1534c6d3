package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/arena/agent"
	"github.com/rustyeddy/arena/competition"
	"github.com/rustyeddy/arena/journal"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 50, cfg.Scheduler.MaxDailyTrades)
	assert.Equal(t, time.Minute, cfg.Scheduler.MinTimeBetweenTrades)
	assert.Equal(t, 0.20, cfg.Risk.MinMarginRatio)
	assert.Equal(t, []float64{0.5, 0.3, 0.2}, cfg.Competition.PayoutCurve)
	assert.Len(t, cfg.Agents, 3)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }, "scheduler.interval must be positive"},
		{"zero attempts", func(c *Config) { c.Scheduler.MaxAttempts = 0 }, "scheduler.max_attempts"},
		{"margin ratio", func(c *Config) { c.Risk.MinMarginRatio = 1.5 }, "risk.min_margin_ratio"},
		{"tier split", func(c *Config) { c.Competition.PromotePct = 0.8 }, "promote_pct and demote_pct"},
		{"tier split overlaps", func(c *Config) { c.Competition.PromotePct = 0.9 }, "promote_pct and demote_pct"},
		{"tier split leaves middle", func(c *Config) { c.Competition.PromotePct = 0.7 }, ""},
		{"promotion risk score", func(c *Config) { c.Competition.MinPromotionRiskScore = 120 }, "min_promotion_risk_score"},
		{"elimination cadence", func(c *Config) { c.Competition.EliminationCadence = -time.Hour }, "elimination_cadence"},
		{"qualification drawdown", func(c *Config) { c.Competition.Qualification.MaxDrawdown = 1.5 }, "competition.qualification"},
		{"house qualification", func(c *Config) {
			c.Competition.Qualification = competition.Qualification{MinRiskScore: 65, MaxDrawdown: 0.30, MinTrades: 100}
		}, ""},
		{"journal type", func(c *Config) { c.Journal.Type = "mongo" }, "journal.type must be"},
		{"csv without dir", func(c *Config) { c.Journal = JournalConfig{Type: "csv"} }, "journal dir required"},
		{"postgres without dsn", func(c *Config) { c.Journal = JournalConfig{Type: "postgres"} }, "ARENA_JOURNAL_DSN"},
		{"bad price", func(c *Config) { c.Market.Symbols[0].Price = 0 }, "needs a positive price"},
		{"duplicate agent", func(c *Config) { c.Agents = append(c.Agents, c.Agents[0]) }, "duplicate agent id"},
		{"unknown profile", func(c *Config) { c.Agents[0].Profile = "reckless" }, "unknown risk profile"},
		{"unquoted symbol", func(c *Config) { c.Agents[0].Symbols = []string{"DOGE-USDT"} }, "unknown symbol"},
		{"llm without model", func(c *Config) {
			c.Agents[0].Decider = "llm"
			c.LLM.Model = ""
		}, "llm.model is empty"},
		{"unknown member", func(c *Config) { c.Competitions[0].Members = []string{"ghost"} }, "unknown agent"},
		{"tournament without duration", func(c *Config) {
			c.Competitions = append(c.Competitions, CompetitionConfig{Name: "cup", Kind: "tournament"})
		}, "end must be after start"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Scheduler.Interval = 3 * time.Second
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, cfg.Scheduler, loaded.Scheduler)
			assert.Equal(t, cfg.Risk.MinMarginRatio, loaded.Risk.MinMarginRatio)
			assert.Equal(t, cfg.Market.Symbols, loaded.Market.Symbols)
			assert.Equal(t, cfg.Agents, loaded.Agents)
			assert.Equal(t, cfg.Competitions, loaded.Competitions)
		})
	}
}

func TestLoadYAMLDurationsAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	doc := `
scheduler:
  interval: 2s
  max_attempts: 5
journal:
  type: none
agents:
  - id: solo
    owner_id: me
    profile: aggressive
    symbols: [BTC-USDT]
    decider: rule
    capital: 5000
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 5, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, "none", cfg.Journal.Type)
	require.Len(t, cfg.Agents, 1)
	assert.Empty(t, cfg.Competitions)
	// unspecified sections keep their defaults
	assert.Equal(t, 252.0, cfg.Scoring.AnnualizationFactor)

	a, err := cfg.Agents[0].Agent()
	require.NoError(t, err)
	assert.Equal(t, agent.MustProfile(agent.Aggressive), a.Profile)
	assert.Equal(t, "solo", a.Name)
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("ARENA_LLM_API_KEY", "sk-test")
	t.Setenv("ARENA_LLM_MODEL", "deepseek-chat")
	t.Setenv("ARENA_LLM_MAX_TOKENS", "64")
	t.Setenv("ARENA_JOURNAL_DSN", "postgres://u@db/arena")
	t.Setenv("ARENA_METRICS_ADDR", ":9100")

	cfg := Default()
	cfg.LoadEnv()
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, 64, cfg.LLM.MaxTokens)
	assert.Equal(t, "postgres://u@db/arena", cfg.Journal.DSN)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestSecretsAreNotSaved(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Journal.DSN = "postgres://u:pw@db/arena"
	path := filepath.Join(t.TempDir(), "arena.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.NotContains(t, string(data), "pw@db")
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestCompetitionSpec(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	cc := CompetitionConfig{Name: "cup", Kind: "Tournament", StartIn: time.Hour, Duration: 7 * 24 * time.Hour, EntryFee: 100, PrizePool: 5000}

	spec, err := cc.Spec(now)
	require.NoError(t, err)
	assert.Equal(t, competition.Tournament, spec.Kind)
	assert.Equal(t, now.Add(time.Hour), spec.StartAt)
	assert.Equal(t, now.Add(time.Hour+7*24*time.Hour), spec.EndAt)
	assert.Equal(t, "100", spec.EntryFee.String())

	_, err = CompetitionConfig{Name: "l", Kind: "league", Tier: "diamond"}.Spec(now)
	assert.Error(t, err)
}

func TestJournalOpen(t *testing.T) {
	j, err := JournalConfig{Type: "none"}.Open()
	require.NoError(t, err)
	assert.Equal(t, journal.Discard, j)

	j, err = JournalConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "a.db")}.Open()
	require.NoError(t, err)
	assert.NoError(t, j.Close())

	j, err = JournalConfig{Type: "csv", Dir: t.TempDir()}.Open()
	require.NoError(t, err)
	assert.NoError(t, j.Close())

	_, err = JournalConfig{Type: "mongo"}.Open()
	assert.Error(t, err)
}
