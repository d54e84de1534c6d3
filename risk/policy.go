package risk

// Config holds arena-wide risk settings. Per-agent limits live on the
// agent's RiskProfile.
type Config struct {
	// Collateral must stay at least this fraction of projected notional.
	MinMarginRatio float64 `yaml:"min_margin_ratio" json:"min_margin_ratio"` // 0.20

	// Exchange minimum order quantity, per symbol with a fallback.
	MinOrderQty         float64            `yaml:"min_order_qty" json:"min_order_qty"` // 0.001
	MinOrderQtyBySymbol map[string]float64 `yaml:"min_order_qty_by_symbol,omitempty" json:"min_order_qty_by_symbol,omitempty"`

	// Sizing divides the position cap by clamp(vol / BaselineVolatility).
	BaselineVolatility float64 `yaml:"baseline_volatility" json:"baseline_volatility"` // 0.02
	MinVolScalar       float64 `yaml:"min_vol_scalar" json:"min_vol_scalar"`           // 0.5
	MaxVolScalar       float64 `yaml:"max_vol_scalar" json:"max_vol_scalar"`           // 4

	// WarnAtPct logs a warning once drawdown reaches this share of the limit.
	WarnAtPct float64 `yaml:"warn_at_pct" json:"warn_at_pct"` // 0.8
}

func DefaultConfig() Config {
	return Config{
		MinMarginRatio:     0.20,
		MinOrderQty:        0.001,
		BaselineVolatility: 0.02,
		MinVolScalar:       0.5,
		MaxVolScalar:       4,
		WarnAtPct:          0.8,
	}
}

func (c Config) minQty(symbol string) float64 {
	if q, ok := c.MinOrderQtyBySymbol[symbol]; ok {
		return q
	}
	return c.MinOrderQty
}

func (c Config) volScalar(vol float64) float64 {
	if vol <= 0 || c.BaselineVolatility <= 0 {
		return 1
	}
	s := vol / c.BaselineVolatility
	if c.MinVolScalar > 0 && s < c.MinVolScalar {
		s = c.MinVolScalar
	}
	if c.MaxVolScalar > 0 && s > c.MaxVolScalar {
		s = c.MaxVolScalar
	}
	return s
}
