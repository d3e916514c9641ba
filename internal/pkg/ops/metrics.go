package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus instruments. One instance is shared by
// the merge pass runner, the lifecycle manager, and the supervisor.
type Metrics struct {
	PassesTotal     prometheus.Counter
	PassFailures    prometheus.Counter
	PassDuration    prometheus.Histogram
	ActiveRecords   prometheus.Gauge
	RetiredTotal    prometheus.Counter
	SourceHealth    *prometheus.GaugeVec
	AlertsRaised    prometheus.Counter
	AdapterRestarts *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PassesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "oddsmesh_aggregation_passes_total",
			Help: "Completed aggregation passes.",
		}),
		PassFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "oddsmesh_aggregation_pass_failures_total",
			Help: "Aggregation passes that failed to publish.",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "oddsmesh_aggregation_pass_duration_seconds",
			Help:    "Wall time of one aggregation pass.",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oddsmesh_active_records",
			Help: "Unified records in the active catalog.",
		}),
		RetiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "oddsmesh_retired_records_total",
			Help: "Records moved from active to history.",
		}),
		SourceHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oddsmesh_source_healthy",
			Help: "1 when the source adapter is healthy, 0 otherwise.",
		}, []string{"source"}),
		AlertsRaised: factory.NewCounter(prometheus.CounterOpts{
			Name: "oddsmesh_alerts_raised_total",
			Help: "Alert events raised by the supervisor.",
		}),
		AdapterRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oddsmesh_adapter_restarts_total",
			Help: "Adapter restart attempts.",
		}, []string{"source"}),
	}
}
