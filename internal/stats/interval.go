package stats

import (
	"errors"
	"math"
	"sort"
	"time"
)

var (
	ErrNoSamplingInterval = errors.New("cannot determine sampling interval")
)

// deltaMinutes returns the gaps between consecutive timestamps rounded to whole minutes.
func deltaMinutes(samples []Sample) []int {
	if len(samples) < 2 {
		return nil
	}
	out := make([]int, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		d := samples[i].Timestamp.Sub(samples[i-1].Timestamp).Minutes()
		out = append(out, int(math.RoundToEven(d)))
	}
	return out
}

// MostCommonInterval returns the dominant reporting interval of a time-ordered series in
// whole minutes. Ties resolve to the shorter interval.
func MostCommonInterval(samples []Sample) (int, error) {
	deltas := deltaMinutes(samples)
	if len(deltas) == 0 {
		return 0, ErrNoSamplingInterval
	}
	counts := make(map[int]int)
	for _, d := range deltas {
		counts[d]++
	}
	best, bestCount := 0, -1
	for d, c := range counts {
		if c > bestCount || (c == bestCount && d < best) {
			best, bestCount = d, c
		}
	}
	if best <= 0 {
		return 0, ErrNoSamplingInterval
	}
	return best, nil
}

// IntervalBin is one bar of an interval histogram.
type IntervalBin struct {
	Minutes int `json:"minutes"`
	Count   int `json:"count"`
}

// IntervalHistogram counts the gaps between consecutive samples per whole minute.
func IntervalHistogram(samples []Sample) []IntervalBin {
	counts := make(map[int]int)
	for _, d := range deltaMinutes(samples) {
		counts[d]++
	}
	bins := make([]IntervalBin, 0, len(counts))
	for m, c := range counts {
		bins = append(bins, IntervalBin{Minutes: m, Count: c})
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].Minutes < bins[j].Minutes })
	return bins
}

// RoundTime rounds t to the nearest multiple of d counted from the Unix epoch, halfway
// values rounding to the even multiple.
func RoundTime(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	ns := t.UnixNano()
	q := ns / int64(d)
	r := ns % int64(d)
	if r < 0 {
		q--
		r += int64(d)
	}
	switch {
	case 2*r > int64(d):
		q++
	case 2*r == int64(d) && q%2 != 0:
		q++
	}
	return time.Unix(0, q*int64(d)).In(t.Location())
}

// Downsample snaps every timestamp of a time-ordered series to the interval grid and
// keeps the first sample per grid point.
func Downsample(samples []Sample, intervalMinutes int) []Sample {
	d := time.Duration(intervalMinutes) * time.Minute
	out := make([]Sample, 0, len(samples))
	seen := make(map[int64]struct{}, len(samples))
	for _, s := range samples {
		ts := RoundTime(s.Timestamp, d)
		key := ts.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Sample{Timestamp: ts, Value: s.Value})
	}
	return out
}
