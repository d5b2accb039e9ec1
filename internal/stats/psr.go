package stats

import (
	"errors"
	"math"
	"time"
)

const (
	DefaultDropBelow = -100000.0

	minutesPerDay = 24 * 60
)

var (
	ErrNoSamples = errors.New("no samples")
)

type PSRConfig struct {
	Resolution Resolution

	// AllowHigherSamplingRates keeps samples that arrive faster than the dominant interval.
	AllowHigherSamplingRates bool

	// DropBelow discards values below the threshold before counting. Special values in the
	// datapool are large negative numbers.
	DropBelow *float64
}

func (c *PSRConfig) Validate() error {
	if c.Resolution == "" {
		c.Resolution = ResolutionWeek
	}
	if _, err := ParseResolution(string(c.Resolution)); err != nil {
		return err
	}
	if c.DropBelow == nil {
		v := DefaultDropBelow
		c.DropBelow = &v
	}
	return nil
}

// PSRPeriod is the packet success ratio of one sensor over one calendar period.
type PSRPeriod struct {
	Timestamp       time.Time `json:"timestamp"`
	Sensor          string    `json:"sensor"`
	Count           int       `json:"count"`
	DayDifference   float64   `json:"day_difference"`
	NormalizedCount float64   `json:"normalized_count"`
}

type PSRResult struct {
	Source          string      `json:"source"`
	IntervalMinutes int         `json:"interval_minutes"`
	Resolution      Resolution  `json:"resolution"`
	Periods         []PSRPeriod `json:"periods"`
}

// ComputePSR relates the number of received samples per period to the number expected from
// the dominant reporting interval. Samples must be ordered by time.
//
// Periods without samples have a NaN ratio, periods whose samples all fall on one day have
// an infinite ratio; both are dropped by EvaluatePSR.
func ComputePSR(source string, samples []Sample, cfg PSRConfig) (*PSRResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	interval, err := MostCommonInterval(samples)
	if err != nil {
		return nil, err
	}

	data := samples
	if !cfg.AllowHigherSamplingRates {
		data = Downsample(samples, interval)
	}

	kept := make([]Sample, 0, len(data))
	for _, s := range data {
		if s.Value < *cfg.DropBelow {
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return nil, ErrNoSamples
	}

	res := cfg.Resolution
	type bucket struct {
		days  float64
		count int
	}
	buckets := make(map[int64]*bucket)
	for i, s := range kept {
		start := res.PeriodStart(s.Timestamp)
		b, ok := buckets[start.Unix()]
		if !ok {
			b = &bucket{}
			buckets[start.Unix()] = b
		}
		b.count++
		if i > 0 {
			b.days += dayDifference(kept[i-1].Timestamp, s.Timestamp)
		}
	}

	first := res.PeriodStart(kept[0].Timestamp)
	last := res.PeriodStart(kept[len(kept)-1].Timestamp)
	expectedPerDay := float64(minutesPerDay) / float64(interval)

	var periods []PSRPeriod
	for start := first; !start.After(last); start = res.Next(start) {
		p := PSRPeriod{
			Timestamp: res.PeriodLabel(start),
			Sensor:    source,
		}
		if b, ok := buckets[start.Unix()]; ok {
			p.Count = b.count
			p.DayDifference = b.days
		}
		p.NormalizedCount = float64(p.Count) / (p.DayDifference * expectedPerDay)
		periods = append(periods, p)
	}

	return &PSRResult{
		Source:          source,
		IntervalMinutes: interval,
		Resolution:      res,
		Periods:         periods,
	}, nil
}

// dayDifference is the number of calendar days between the dates of prev and cur.
func dayDifference(prev, cur time.Time) float64 {
	return math.Round(day(cur).Sub(day(prev)).Hours() / 24)
}
