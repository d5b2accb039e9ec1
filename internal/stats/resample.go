package stats

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

const DefaultRollingWindow = 24

// Resample averages samples per fixed bucket of length d, labelled by the bucket start.
// Buckets without samples are left out.
func Resample(samples []Sample, d time.Duration) []Sample {
	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[int64]*acc)
	var keys []int64
	for _, s := range samples {
		if !isFinite(s.Value) {
			continue
		}
		k := s.Timestamp.Truncate(d).UnixNano()
		a, ok := buckets[k]
		if !ok {
			a = &acc{}
			buckets[k] = a
			keys = append(keys, k)
		}
		a.sum += s.Value
		a.n++
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var loc *time.Location
	if len(samples) > 0 {
		loc = samples[0].Timestamp.Location()
	}
	out := make([]Sample, len(keys))
	for i, k := range keys {
		a := buckets[k]
		ts := time.Unix(0, k)
		if loc != nil {
			ts = ts.In(loc)
		}
		out[i] = Sample{Timestamp: ts, Value: a.sum / float64(a.n)}
	}
	return out
}

// ResampleHourly is Resample with one-hour buckets.
func ResampleHourly(samples []Sample) []Sample {
	return Resample(samples, time.Hour)
}

// Pair holds the values of two signals at the same timestamp.
type Pair struct {
	Timestamp time.Time
	X, Y      float64
}

// Join keeps the timestamps present in both series, in time order.
func Join(x, y []Sample) []Pair {
	ys := make(map[int64]float64, len(y))
	for _, s := range y {
		ys[s.Timestamp.UnixNano()] = s.Value
	}
	var out []Pair
	for _, s := range x {
		if v, ok := ys[s.Timestamp.UnixNano()]; ok {
			out = append(out, Pair{Timestamp: s.Timestamp, X: s.Value, Y: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Standardize centers values on their mean and scales them by the sample standard deviation.
func Standardize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) < 2 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	mean, std := stat.MeanStdDev(values, nil)
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}

func windowBounds(i, n, window int, centered bool) (int, int) {
	if centered {
		offset := (window - 1) / 2
		end := i + offset
		return end - window + 1, end
	}
	return i - window + 1, i
}

// rolling applies fn over every full window. Positions without a full window of finite
// values are NaN.
func rolling(values []float64, window int, centered bool, fn func([]float64) float64) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	buf := make([]float64, 0, window)
	for i := range values {
		lo, hi := windowBounds(i, len(values), window, centered)
		if lo < 0 || hi >= len(values) {
			out[i] = math.NaN()
			continue
		}
		buf = buf[:0]
		for _, v := range values[lo : hi+1] {
			if isFinite(v) {
				buf = append(buf, v)
			}
		}
		if len(buf) < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(buf)
	}
	return out
}

func RollingMean(values []float64, window int, centered bool) []float64 {
	return rolling(values, window, centered, func(w []float64) float64 {
		return stat.Mean(w, nil)
	})
}

func RollingMedian(values []float64, window int, centered bool) []float64 {
	if window <= 0 {
		return rolling(values, window, centered, nil)
	}
	tmp := make([]float64, window)
	return rolling(values, window, centered, func(w []float64) float64 {
		copy(tmp, w)
		sort.Float64s(tmp)
		return median(tmp)
	})
}

// Diff is the difference between two standardized, smoothed signals at one timestamp.
type Diff struct {
	Timestamp time.Time `json:"timestamp"`
	Abs       float64   `json:"abs_diff"`
	Rel       float64   `json:"rel_diff"`
}

// SignalDiff compares two signals after hourly averaging, standardization and a trailing
// rolling mean. Rows that are not finite are omitted.
func SignalDiff(x, y []Sample, window int) []Diff {
	if window <= 0 {
		window = DefaultRollingWindow
	}
	pairs := Join(ResampleHourly(x), ResampleHourly(y))
	xs := make([]float64, len(pairs))
	ys := make([]float64, len(pairs))
	for i, p := range pairs {
		xs[i], ys[i] = p.X, p.Y
	}
	xs = RollingMean(Standardize(xs), window, false)
	ys = RollingMean(Standardize(ys), window, false)

	var out []Diff
	for i, p := range pairs {
		abs := xs[i] - ys[i]
		rel := abs / ys[i]
		if !isFinite(abs) || !isFinite(rel) {
			continue
		}
		out = append(out, Diff{Timestamp: p.Timestamp, Abs: abs, Rel: rel})
	}
	return out
}
