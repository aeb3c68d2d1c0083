// Package metrics holds all prometheus metrics for the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus collectors for the application.
type Metrics struct {
	ScansTotal       *prometheus.CounterVec
	ScanDuration     prometheus.Histogram
	SyncRunsTotal    *prometheus.CounterVec
	SyncDuration     *prometheus.HistogramVec
	TrustListSize    prometheus.Gauge
	AuditDropsTotal  prometheus.Counter
	BoosterRunsTotal *prometheus.CounterVec
}

// New creates and registers all prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ScansTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certpass_scans_total",
			Help: "Certificate scans by check result.",
		}, []string{"result"}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certpass_scan_duration_seconds",
			Help:    "Full decode-verify-evaluate latency per scan.",
			Buckets: prometheus.DefBuckets,
		}),
		SyncRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certpass_sync_runs_total",
			Help: "Background sync runs by job and outcome.",
		}, []string{"job", "outcome"}),
		SyncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certpass_sync_duration_seconds",
			Help:    "Background sync run duration by job.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		TrustListSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "certpass_trust_list_certificates",
			Help: "Number of document signer certificates currently trusted.",
		}),
		AuditDropsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certpass_audit_drops_total",
			Help: "Audit events dropped because the inbox was full.",
		}),
		BoosterRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certpass_booster_runs_total",
			Help: "Booster recompute runs by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveScan records one completed scan.
func (m *Metrics) ObserveScan(result string, duration time.Duration) {
	m.ScansTotal.WithLabelValues(result).Inc()
	m.ScanDuration.Observe(duration.Seconds())
}

// ObserveJob implements the worker recorder.
func (m *Metrics) ObserveJob(name string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.SyncRunsTotal.WithLabelValues(name, outcome).Inc()
	m.SyncDuration.WithLabelValues(name).Observe(duration.Seconds())
}
