package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the differ's prometheus collectors.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	changes      *prometheus.CounterVec
}

// NewMetrics creates the differ collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arb_snapshot_diff_duration_seconds",
				Help:    "Time taken to diff two market snapshots",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
			[]string{},
		),
		changes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_snapshot_changes_total",
				Help: "Total number of snapshot records added, updated or deleted",
			},
			[]string{"kind", "op"},
		),
	}
	reg.MustRegister(m.diffDuration, m.changes)
	return m
}

func (m *Metrics) record(kind string, added, updated, deleted int) {
	m.changes.WithLabelValues(kind, "add").Add(float64(added))
	m.changes.WithLabelValues(kind, "update").Add(float64(updated))
	m.changes.WithLabelValues(kind, "delete").Add(float64(deleted))
}
