package drift

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricNameStatistic = "sensorhealth_drift_statistic"
	MetricNamePValue    = "sensorhealth_drift_pvalue"
	MetricNameDrifting  = "sensorhealth_drift_drifting"
	MetricNameErrors    = "sensorhealth_drift_errors_total"

	MetricLabelSource    = "source"
	MetricLabelSimilarTo = "similar_to"
	MetricLabelErrorType = "error_type"

	MetricErrorTypeRunCheck      = "run_check"
	MetricErrorTypeEvaluatePair  = "evaluate_pair"
	MetricErrorTypeWriteHistory  = "write_history"
	MetricErrorTypeWriteWorkbook = "write_workbook"
	MetricErrorTypeNotify        = "notify"
)

type Metrics struct {
	Statistic *prometheus.GaugeVec
	PValue    *prometheus.GaugeVec
	Drifting  *prometheus.GaugeVec
	Errors    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	labels := []string{MetricLabelSource, MetricLabelSimilarTo}
	return &Metrics{
		Statistic: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricNameStatistic,
				Help: "Kolmogorov-Smirnov statistic of the last week against the history",
			},
			labels,
		),
		PValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricNamePValue,
				Help: "Kolmogorov-Smirnov p-value of the last week against the history",
			},
			labels,
		),
		Drifting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricNameDrifting,
				Help: "1 if the sensor drifts away from its reference",
			},
			labels,
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

func (m *Metrics) Register(r prometheus.Registerer) {
	r.MustRegister(m.Statistic, m.PValue, m.Drifting, m.Errors)
}
