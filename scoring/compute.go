package scoring

import "math"

// Compute derives a snapshot from h. It reads nothing but its arguments,
// so identical history always yields an identical snapshot.
func Compute(cfg Config, h History) Snapshot {
	s := Snapshot{AgentID: h.AgentID, AsOf: h.AsOf, Capital: h.CurrentCapital}

	if h.InitialCapital > 0 {
		s.TotalReturn = (h.CurrentCapital - h.InitialCapital) / h.InitialCapital
	}

	var grossProfit, grossLoss float64
	for _, t := range h.Trades {
		if !t.Closing {
			continue
		}
		s.TotalTrades++
		switch {
		case t.RealizedPnL > 0:
			s.WinningTrades++
			grossProfit += t.RealizedPnL
		case t.RealizedPnL < 0:
			grossLoss -= t.RealizedPnL
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		s.ProfitFactor = cfg.ProfitFactorCap
	}

	curve := equityCurve(h)
	s.MaxDrawdown, s.CurrentDrawdown = drawdowns(curve)

	rets := returns(curve)
	ann := math.Sqrt(cfg.AnnualizationFactor)
	s.SharpeRatio = sharpe(rets) * ann
	s.SortinoRatio = sortino(rets) * ann
	s.Volatility = ewmaStd(rets, cfg.VolLambda) * ann
	if len(rets) > 0 {
		var up int
		for _, r := range rets {
			if r > 0 {
				up++
			}
		}
		s.Consistency = float64(up) / float64(len(rets))
	}
	return s
}

func equityCurve(h History) []float64 {
	if len(h.Equity) == 0 {
		if h.InitialCapital <= 0 {
			return nil
		}
		return []float64{h.InitialCapital, h.CurrentCapital}
	}
	out := make([]float64, 0, len(h.Equity)+1)
	if h.InitialCapital > 0 {
		out = append(out, h.InitialCapital)
	}
	for _, e := range h.Equity {
		out = append(out, e.Capital)
	}
	return out
}

func returns(curve []float64) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1] <= 0 {
			continue
		}
		out = append(out, curve[i]/curve[i-1]-1)
	}
	return out
}

func drawdowns(curve []float64) (maxDD, current float64) {
	var peak float64
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
		}
		current = dd
	}
	return maxDD, current
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		std += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(std / float64(len(xs)))
}

func sharpe(rets []float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	mean, std := meanStd(rets)
	if std == 0 {
		return 0
	}
	return mean / std
}

func sortino(rets []float64) float64 {
	var down []float64
	for _, r := range rets {
		if r < 0 {
			down = append(down, r)
		}
	}
	if len(down) < 2 {
		return 0
	}
	_, std := meanStd(down)
	if std == 0 {
		return 0
	}
	mean, _ := meanStd(rets)
	return mean / std
}

// ewmaStd weights recent returns more, so flat idle periods decay it.
func ewmaStd(rets []float64, lambda float64) float64 {
	if len(rets) == 0 {
		return 0
	}
	if lambda <= 0 || lambda >= 1 {
		_, std := meanStd(rets)
		return std
	}
	v := rets[0] * rets[0]
	for _, r := range rets[1:] {
		v = lambda*v + (1-lambda)*r*r
	}
	return math.Sqrt(v)
}
