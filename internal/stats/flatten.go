package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

type Normalization string

const (
	NormalizeNone   Normalization = ""
	NormalizeMean   Normalization = "mean"
	NormalizeMedian Normalization = "median"

	DefaultMedianWindow = 3
	DefaultMeanWindow   = 24
	DefaultFlattenMin   = 0.0
	DefaultFlattenMax   = 100.0
)

type FlattenConfig struct {
	Min, Max     *float64
	MedianWindow int
	MeanWindow   int
	Normalize    Normalization
}

func (c *FlattenConfig) Validate() error {
	if c.Min == nil {
		v := DefaultFlattenMin
		c.Min = &v
	}
	if c.Max == nil {
		v := DefaultFlattenMax
		c.Max = &v
	}
	if *c.Min > *c.Max {
		return fmt.Errorf("min %v is greater than max %v", *c.Min, *c.Max)
	}
	if c.MedianWindow == 0 {
		c.MedianWindow = DefaultMedianWindow
	}
	if c.MedianWindow < 0 {
		return errors.New("median window must be positive")
	}
	if c.MeanWindow == 0 {
		c.MeanWindow = DefaultMeanWindow
	}
	if c.MeanWindow < 0 {
		return errors.New("mean window must be positive")
	}
	switch c.Normalize {
	case NormalizeNone, NormalizeMean, NormalizeMedian:
	default:
		return fmt.Errorf("invalid normalization %q", c.Normalize)
	}
	return nil
}

// Flatten extracts the trend of a noisy signal: values are clipped to [Min, Max], passed
// through a centered rolling median and then a centered rolling mean. With normalization the
// trend is divided by the mean or median of the raw values.
func Flatten(samples []Sample, cfg FlattenConfig) ([]Sample, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sorted := append([]Sample(nil), samples...)
	SortSamples(sorted)

	raw := Values(sorted)
	clipped := make([]float64, len(raw))
	for i, v := range raw {
		clipped[i] = math.Max(*cfg.Min, math.Min(*cfg.Max, v))
	}
	trend := RollingMean(RollingMedian(clipped, cfg.MedianWindow, true), cfg.MeanWindow, true)

	var scale float64 = 1
	switch cfg.Normalize {
	case NormalizeMean:
		scale = stat.Mean(Finite(raw), nil)
	case NormalizeMedian:
		f := Finite(raw)
		sort.Float64s(f)
		scale = median(f)
	}

	out := make([]Sample, len(sorted))
	for i, s := range sorted {
		out[i] = Sample{Timestamp: s.Timestamp, Value: trend[i] / scale}
	}
	return out, nil
}
