package stats

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// SignalStat summarizes the samples of one signal over a window.
type SignalStat struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"` // Start of window (RFC3339)

	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	P90      float64 `json:"p90"`
	P95      float64 `json:"p95"`
	P99      float64 `json:"p99"`
	StdDev   float64 `json:"stddev"`   // population
	Variance float64 `json:"variance"` // population
	MAD      float64 `json:"mad"`      // median absolute deviation

	ValidCount   uint64  `json:"valid_count"`
	InvalidCount uint64  `json:"invalid_count"` // NaN, ±Inf or below the special value threshold
	InvalidRate  float64 `json:"invalid_rate"`
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// nearest-rank percentile on sorted data
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// Summarize computes summary statistics. Values below dropBelow count as invalid.
func Summarize(ts time.Time, values []float64, dropBelow float64) SignalStat {
	var valid []float64
	var invalid uint64
	for _, v := range values {
		if !isFinite(v) || v < dropBelow {
			invalid++
			continue
		}
		valid = append(valid, v)
	}
	total := uint64(len(valid)) + invalid
	out := SignalStat{
		Timestamp:    ts.Format(time.RFC3339),
		InvalidCount: invalid,
	}
	if total > 0 {
		out.InvalidRate = float64(invalid) / float64(total)
	}
	if len(valid) == 0 {
		return out
	}

	sort.Float64s(valid)
	mean, std := stat.PopMeanStdDev(valid, nil)

	med := median(valid)
	dev := make([]float64, len(valid))
	for i, v := range valid {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)

	out.Mean = mean
	out.Median = med
	out.Min = valid[0]
	out.Max = valid[len(valid)-1]
	out.P90 = percentile(valid, 0.90)
	out.P95 = percentile(valid, 0.95)
	out.P99 = percentile(valid, 0.99)
	out.StdDev = std
	out.Variance = std * std
	out.MAD = median(dev)
	out.ValidCount = uint64(len(valid))
	return out
}

// Aggregate splits the samples into at most maxPoints equal time windows and summarizes each.
// With maxPoints 0 the whole range is one window.
func Aggregate(source string, samples []Sample, maxPoints int, dropBelow float64) []SignalStat {
	if len(samples) == 0 {
		return []SignalStat{}
	}
	sorted := append([]Sample(nil), samples...)
	SortSamples(sorted)
	first := sorted[0].Timestamp
	last := sorted[len(sorted)-1].Timestamp

	if maxPoints <= 1 || !last.After(first) {
		s := Summarize(first, Values(sorted), dropBelow)
		s.Source = source
		return []SignalStat{s}
	}

	span := last.Sub(first)
	width := span / time.Duration(maxPoints)
	if width <= 0 {
		width = 1
	}

	var out []SignalStat
	var window []float64
	windowIdx := 0
	flush := func() {
		if len(window) == 0 {
			return
		}
		s := Summarize(first.Add(time.Duration(windowIdx)*width), window, dropBelow)
		s.Source = source
		out = append(out, s)
		window = window[:0]
	}
	for _, smp := range sorted {
		idx := int(smp.Timestamp.Sub(first) / width)
		if idx >= maxPoints {
			idx = maxPoints - 1
		}
		if idx != windowIdx {
			flush()
			windowIdx = idx
		}
		window = append(window, smp.Value)
	}
	flush()
	return out
}
