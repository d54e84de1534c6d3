package risk

import (
	"math"

	"github.com/rustyeddy/arena/agent"
)

// Exposure is the total absolute notional of positions at their marks.
func Exposure(ps []agent.Position) float64 {
	var n float64
	for _, p := range ps {
		n += p.Notional()
	}
	return n
}

// Leverage is exposure over capital. Non-positive capital with open
// exposure is infinitely levered.
func Leverage(ps []agent.Position, capital float64) float64 {
	n := Exposure(ps)
	if n == 0 {
		return 0
	}
	if capital <= 0 {
		return math.Inf(1)
	}
	return n / capital
}

// Metrics feeds RiskScore.
type Metrics struct {
	SharpeRatio  float64
	SortinoRatio float64
	MaxDrawdown  float64
	Consistency  float64 // share of profitable periods, 0..1
	Leverage     float64
	Volatility   float64 // annualized
}

// RiskScore grades an agent from 0 to 100, higher is better. Sharpe is
// worth up to 30 points, Sortino 25, drawdown 20 and consistency 15.
// Leverage above 3x and annualized volatility above 50% cost up to 10 each.
func RiskScore(m Metrics) float64 {
	sharpe := clamp(m.SharpeRatio*12, 0, 30)
	sortino := clamp(m.SortinoRatio*10, 0, 25)
	drawdown := math.Max(0, 20-m.MaxDrawdown*66.67)
	consistency := clamp(m.Consistency, 0, 1) * 15

	var penalty float64
	if m.Leverage > 3 {
		penalty += clamp((m.Leverage-3)*2, 0, 10)
	}
	if m.Volatility > 0.5 {
		penalty += clamp((m.Volatility-0.5)*10, 0, 10)
	}

	return clamp(sharpe+sortino+drawdown+consistency-penalty, 0, 100)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
