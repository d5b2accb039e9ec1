package psr

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Metric names.
	MetricNameCurrent    = "sensorhealth_psr_current"
	MetricNameZScore     = "sensorhealth_psr_zscore"
	MetricNameSuspicious = "sensorhealth_psr_suspicious"
	MetricNameSkipped    = "sensorhealth_psr_skipped"
	MetricNameErrors     = "sensorhealth_psr_errors_total"

	// Labels.
	MetricLabelSource    = "source"
	MetricLabelErrorType = "error_type"

	// Error types.
	MetricErrorTypeRunCheck      = "run_check"
	MetricErrorTypeWriteHistory  = "write_history"
	MetricErrorTypeWriteWorkbook = "write_workbook"
	MetricErrorTypeArchive       = "archive"
	MetricErrorTypeNotify        = "notify"
)

type Metrics struct {
	Current    *prometheus.GaugeVec
	ZScore     *prometheus.GaugeVec
	Suspicious *prometheus.GaugeVec
	Skipped    prometheus.Gauge
	Errors     *prometheus.CounterVec
}

// NewMetrics creates the collectors but does not auto-register them.
func NewMetrics() *Metrics {
	return &Metrics{
		Current: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricNameCurrent,
				Help: "Normalized PSR of the last period",
			},
			[]string{MetricLabelSource},
		),
		ZScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricNameZScore,
				Help: "Z-score of the last period PSR against the history",
			},
			[]string{MetricLabelSource},
		),
		Suspicious: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricNameSuspicious,
				Help: "1 if the sensor is flagged as suspicious",
			},
			[]string{MetricLabelSource},
		),
		Skipped: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricNameSkipped,
				Help: "Number of sources skipped in the last check",
			},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricNameErrors,
				Help: "Number of errors encountered",
			},
			[]string{MetricLabelErrorType},
		),
	}
}

// Register all metrics with the provided registry.
func (m *Metrics) Register(r prometheus.Registerer) {
	r.MustRegister(m.Current, m.ZScore, m.Suspicious, m.Skipped, m.Errors)
}
