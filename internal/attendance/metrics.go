package attendance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the coordinator's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	checkins *prometheus.CounterVec
	cache    *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		checkins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_checkins_total",
			Help: "Check-in attempts by result.",
		}, []string{"result"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_dedup_cache_total",
			Help: "Dedup cache probes by result.",
		}, []string{"result"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: "attendance_store_retries_total",
			Help: "Ledger operations retried after a transient failure.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_checkin_duration_seconds",
			Help:    "Check-in latency.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
}

func (m *Metrics) observe(out Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.checkins.WithLabelValues(string(out.Result)).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) cacheProbe(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
