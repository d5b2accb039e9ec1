package stats

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	DefaultOutlierZ = -3.0
	DefaultAnomalyZ = -2.0

	// spreads below this (relative to the mean) are rounding noise
	zeroSpread = 1e-12
)

var (
	ErrNotEnoughPeriods = errors.New("not enough periods to build a baseline")
)

type AnomalyConfig struct {
	// History points scoring at or below OutlierZ are left out of the baseline.
	OutlierZ float64
	// The current period is suspicious when it scores below AnomalyZ.
	AnomalyZ float64
}

func (c *AnomalyConfig) Validate() error {
	if c.OutlierZ == 0 {
		c.OutlierZ = DefaultOutlierZ
	}
	if c.AnomalyZ == 0 {
		c.AnomalyZ = DefaultAnomalyZ
	}
	if c.OutlierZ >= 0 || c.AnomalyZ >= 0 {
		return errors.New("z-score thresholds must be negative")
	}
	return nil
}

// PSREvaluation is the verdict on the most recent period of a sensor.
type PSREvaluation struct {
	Source     string    `json:"source"`
	LastPeriod time.Time `json:"last_period"`
	Current    float64   `json:"current"`
	OldMean    float64   `json:"old_mean"`
	ZScore     float64   `json:"z_score"`
	Suspicious bool      `json:"suspicious"`
	Baseline   int       `json:"baseline_periods"`
	Outliers   int       `json:"outliers"`
}

// ZScores standardizes values with the population standard deviation. A series without
// spread scores 0 everywhere.
func ZScores(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	if math.IsNaN(std) || std <= zeroSpread*math.Max(1, math.Abs(mean)) {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}

// EvaluatePSR compares the last period against the earlier ones. Low outliers are removed
// from the history before the current period is scored against it.
func EvaluatePSR(res *PSRResult, cfg AnomalyConfig) (*PSREvaluation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var periods []PSRPeriod
	for _, p := range res.Periods {
		if isFinite(p.NormalizedCount) {
			periods = append(periods, p)
		}
	}
	if len(periods) < 2 {
		return nil, ErrNotEnoughPeriods
	}

	history := periods[:len(periods)-1]
	current := periods[len(periods)-1]

	values := make([]float64, len(history))
	for i, p := range history {
		values[i] = p.NormalizedCount
	}
	scores := ZScores(values)

	kept := make([]float64, 0, len(values))
	for i, v := range values {
		if scores[i] > cfg.OutlierZ {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNotEnoughPeriods
	}

	oldMean := stat.Mean(kept, nil)
	combined := append(kept, current.NormalizedCount)
	z := ZScores(combined)[len(combined)-1]

	return &PSREvaluation{
		Source:     res.Source,
		LastPeriod: current.Timestamp,
		Current:    current.NormalizedCount,
		OldMean:    oldMean,
		ZScore:     z,
		Suspicious: z < cfg.AnomalyZ,
		Baseline:   len(kept),
		Outliers:   len(values) - len(kept),
	}, nil
}
