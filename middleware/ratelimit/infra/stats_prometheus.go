package infra

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"tauben-gateway/middleware/ratelimit/domain"
)

// PrometheusStats expõe decisões e tamanho dos stores como métricas.
// Implementa domain.StatsStore e SweepObserver.
type PrometheusStats struct {
	decisions *prometheus.CounterVec
	entries   *prometheus.GaugeVec
	swept     *prometheus.CounterVec
}

func NewPrometheusStats(reg prometheus.Registerer) (*PrometheusStats, error) {
	p := &PrometheusStats{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tauben",
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Admission decisions by policy and result",
			},
			[]string{"policy", "result"},
		),
		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tauben",
				Subsystem: "ratelimit",
				Name:      "window_entries",
				Help:      "Window entries held in memory after the last sweep",
			},
			[]string{"policy"},
		),
		swept: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tauben",
				Subsystem: "ratelimit",
				Name:      "swept_entries_total",
				Help:      "Expired window entries removed by the sweeper",
			},
			[]string{"policy"},
		),
	}

	for _, c := range []prometheus.Collector{p.decisions, p.entries, p.swept} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "denied"
	if ev.Allowed {
		result = "allowed"
	}
	p.decisions.WithLabelValues(ev.Policy, result).Inc()
	return nil
}

func (p *PrometheusStats) ObserveSweep(store string, removed, remaining int) {
	p.swept.WithLabelValues(store).Add(float64(removed))
	p.entries.WithLabelValues(store).Set(float64(remaining))
}
