package inventory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors of the engine.
// A nil *Metrics is valid and records nothing.
// エンジンのメトリクス（nilの場合は記録しない）
type Metrics struct {
	reservations     *prometheus.CounterVec
	reserveDuration  *prometheus.HistogramVec
	commits          *prometheus.CounterVec
	commitDuration   prometheus.Histogram
	transferredUnits *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them on reg
// メトリクスを作成しレジストリに登録
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "reservations_total",
			Help:      "Smart reservations by channel and outcome.",
		}, []string{"channel", "outcome"}),
		reserveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stock",
			Name:      "reservation_duration_seconds",
			Help:      "Smart reservation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "commits_total",
			Help:      "Reservation commits by outcome.",
		}, []string{"outcome"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stock",
			Name:      "commit_duration_seconds",
			Help:      "Reservation commit latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		transferredUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stock",
			Name:      "transferred_units_total",
			Help:      "Units moved between tiers by movement type.",
		}, []string{"type"}),
	}

	for _, c := range []prometheus.Collector{m.reservations, m.reserveDuration, m.commits, m.commitDuration, m.transferredUnits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeReservation(channel Channel, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(string(channel), outcome).Inc()
	m.reserveDuration.WithLabelValues(string(channel)).Observe(d.Seconds())
}

func (m *Metrics) observeCommit(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
	m.commitDuration.Observe(d.Seconds())
}

func (m *Metrics) observeTransfer(movementType MovementType, units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.transferredUnits.WithLabelValues(string(movementType)).Add(float64(units))
}
