// Package scoring turns an agent's trade and equity history into a
// PerformanceSnapshot.
package scoring

import (
	"time"

	"github.com/rustyeddy/arena/journal"
)

// Snapshot is recomputed from history, never patched in place.
type Snapshot struct {
	AgentID         string
	AsOf            time.Time
	Capital         float64
	SharpeRatio     float64
	SortinoRatio    float64
	MaxDrawdown     float64
	CurrentDrawdown float64
	Volatility      float64
	TotalReturn     float64
	WinRate         float64
	ProfitFactor    float64
	Consistency     float64
	TotalTrades     int
	WinningTrades   int
}

func (s Snapshot) Record() journal.PerformanceRecord {
	return journal.PerformanceRecord{
		AgentID:         s.AgentID,
		AsOf:            s.AsOf,
		SharpeRatio:     s.SharpeRatio,
		SortinoRatio:    s.SortinoRatio,
		MaxDrawdown:     s.MaxDrawdown,
		CurrentDrawdown: s.CurrentDrawdown,
		Volatility:      s.Volatility,
		TotalReturn:     s.TotalReturn,
		WinRate:         s.WinRate,
		ProfitFactor:    s.ProfitFactor,
		TotalTrades:     s.TotalTrades,
		WinningTrades:   s.WinningTrades,
	}
}

// History is everything a snapshot is computed from.
type History struct {
	AgentID        string
	InitialCapital float64
	CurrentCapital float64
	Trades         []journal.TradeRecord
	Equity         []journal.EquitySnapshot
	AsOf           time.Time
}

type Config struct {
	AnnualizationFactor float64 `yaml:"annualization_factor" json:"annualization_factor"` // 252
	ProfitFactorCap     float64 `yaml:"profit_factor_cap" json:"profit_factor_cap"`       // 999
	VolLambda           float64 `yaml:"vol_lambda" json:"vol_lambda"`                     // 0.94
}

func DefaultConfig() Config {
	return Config{
		AnnualizationFactor: 252,
		ProfitFactorCap:     999,
		VolLambda:           0.94,
	}
}
