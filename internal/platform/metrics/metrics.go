package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the custody platform.
type Metrics struct {
	OperationsStarted    *prometheus.CounterVec
	OperationsSettled    *prometheus.CounterVec
	OperationsFailed     *prometheus.CounterVec
	AnomaliesDetected    *prometheus.CounterVec
	ComplianceRejections prometheus.Counter
	ReserveRatioBPS      prometheus.Gauge
	TotalReserves        prometheus.Gauge
	TotalIssued          prometheus.Gauge
	RequestDuration      *prometheus.HistogramVec
}

// New creates all platform metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "istsi_operations_started_total",
			Help: "Composite operations accepted by the integration router, by kind",
		}, []string{"kind"}),
		OperationsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "istsi_operations_settled_total",
			Help: "Operations that reached the Settled terminal state, by kind",
		}, []string{"kind"}),
		OperationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "istsi_operations_failed_total",
			Help: "Operations that reached the Failed terminal state, by kind and reason",
		}, []string{"kind", "reason"}),
		AnomaliesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "istsi_operation_anomalies_total",
			Help: "Terminal operations flagged for manual reconciliation, by kind",
		}, []string{"kind"}),
		ComplianceRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "istsi_compliance_rejections_total",
			Help: "Operations rejected at the compliance boundary",
		}),
		ReserveRatioBPS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "istsi_reserve_ratio_bps",
			Help: "Current reserve ratio in basis points",
		}),
		TotalReserves: factory.NewGauge(prometheus.GaugeOpts{
			Name: "istsi_total_reserves_satoshis",
			Help: "Aggregate Bitcoin reserves in satoshis",
		}),
		TotalIssued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "istsi_total_issued_units",
			Help: "Aggregate issued token supply in base units",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "istsi_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
