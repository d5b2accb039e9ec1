package health

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/stats"
)

// Matrix holds normalized PSR values for a heatmap: one row per sensor, one column per
// period. Cells without a value are NaN.
type Matrix struct {
	Title      string
	Resolution stats.Resolution
	Rows       []string
	Columns    []time.Time
	Values     [][]float64
}

// NewMatrix lays out PSR results on the union of their period labels.
func NewMatrix(title string, res stats.Resolution, results []*stats.PSRResult) *Matrix {
	m := &Matrix{Title: title, Resolution: res}

	cols := make(map[int64]time.Time)
	for _, r := range results {
		for _, p := range r.Periods {
			cols[p.Timestamp.Unix()] = p.Timestamp
		}
	}
	for _, t := range cols {
		m.Columns = append(m.Columns, t)
	}
	sort.Slice(m.Columns, func(i, j int) bool { return m.Columns[i].Before(m.Columns[j]) })
	index := make(map[int64]int, len(m.Columns))
	for i, t := range m.Columns {
		index[t.Unix()] = i
	}

	for _, r := range results {
		row := make([]float64, len(m.Columns))
		for i := range row {
			row[i] = math.NaN()
		}
		for _, p := range r.Periods {
			row[index[p.Timestamp.Unix()]] = p.NormalizedCount
		}
		m.Rows = append(m.Rows, r.Source)
		m.Values = append(m.Values, row)
	}
	return m
}

// SensorGroup is the prefix of a source name before the first underscore, e.g. "bl".
func SensorGroup(source string) string {
	group, _, _ := strings.Cut(source, "_")
	return group
}

// GroupSources buckets source names by sensor group, keeping each bucket sorted.
func GroupSources(sources []string) map[string][]string {
	out := make(map[string][]string)
	for _, s := range sources {
		g := SensorGroup(s)
		out[g] = append(out[g], s)
	}
	for _, members := range out {
		sort.Strings(members)
	}
	return out
}

// GroupMatrix computes the PSR of every source of a group at one resolution. Sources
// whose PSR cannot be computed are returned as skipped.
func (c *PSRChecker) GroupMatrix(ctx context.Context, group string, res stats.Resolution, window Window) (*Matrix, []SkippedRow, error) {
	sources, err := c.sources(ctx)
	if err != nil {
		return nil, nil, err
	}
	members := GroupSources(sources)[group]

	outcomes, err := c.compute(ctx, members, window, res, false)
	if err != nil {
		return nil, nil, err
	}
	var results []*stats.PSRResult
	var skipped []SkippedRow
	for _, o := range outcomes {
		if o.err != nil {
			skipped = append(skipped, SkippedRow{Source: o.source, Reason: o.err.Error()})
			continue
		}
		results = append(results, o.result)
	}
	title := "PSR of " + group + " sensors: Resolution : " + string(res)
	return NewMatrix(title, res, results), skipped, nil
}

// SensorMatrices computes the PSR of one source at several resolutions, one matrix each.
func (c *PSRChecker) SensorMatrices(ctx context.Context, source string, resolutions []stats.Resolution, window Window) ([]*Matrix, error) {
	samples, err := c.cfg.Provider.MainSignals(ctx, source, window.From, window.To)
	if err != nil {
		return nil, err
	}
	out := make([]*Matrix, 0, len(resolutions))
	for _, res := range resolutions {
		result, err := stats.ComputePSR(source, samples, stats.PSRConfig{
			Resolution:               res,
			AllowHigherSamplingRates: c.cfg.AllowHigherSamplingRates,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, NewMatrix(source, res, []*stats.PSRResult{result}))
	}
	return out, nil
}
