package scheduler

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	cycles       *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	orders       *prometheus.CounterVec
	retries      prometheus.Counter
	liquidations prometheus.Counter
	activeAgents prometheus.Gauge
}

// NewMetrics builds the scheduler's collectors and registers them with reg
// when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_cycles_total", Help: "Agent cycles by outcome",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_rejections_total", Help: "Orders refused before submission, by reason",
		}, []string{"reason"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_orders_total", Help: "Orders reaching a status",
		}, []string{"status"}),
		retries:      prometheus.NewCounter(prometheus.CounterOpts{Name: "arena_retries_total", Help: "Retried external calls"}),
		liquidations: prometheus.NewCounter(prometheus.CounterOpts{Name: "arena_liquidations_total", Help: "Agents force-liquidated on drawdown"}),
		activeAgents: prometheus.NewGauge(prometheus.GaugeOpts{Name: "arena_active_agents", Help: "Agents with a running worker"}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.rejections, m.orders, m.retries, m.liquidations, m.activeAgents)
	}
	return m
}
