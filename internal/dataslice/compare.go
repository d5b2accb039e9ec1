package dataslice

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
)

type RecordSource interface {
	Records(ctx context.Context, q datapool.SignalQuery) ([]datapool.Record, error)
}

// Comparison is the outcome of comparing one selection between the datapool and a slice.
type Comparison struct {
	Query         datapool.SignalQuery `json:"-"`
	DatapoolCount int                  `json:"datapool_count"`
	SliceCount    int                  `json:"slice_count"`
	SameVariable  bool                 `json:"same_variable"`
	SameUnit      bool                 `json:"same_unit"`
	// SquaredDiff is the sum of squared value differences; NaN when the row counts differ.
	SquaredDiff float64 `json:"squared_diff"`
}

func (c Comparison) Consistent() bool {
	return c.SameVariable && c.SameUnit && c.SquaredDiff == 0
}

// CompareWithDatapool loads the same selection from both stores and compares them row by
// row in time order. Rows where both values are missing count as equal.
func CompareWithDatapool(ctx context.Context, dp RecordSource, sl *Slice, q datapool.SignalQuery) (Comparison, error) {
	fromPool, err := dp.Records(ctx, q)
	if err != nil {
		return Comparison{}, fmt.Errorf("failed to load datapool selection: %w", err)
	}
	fromSlice, err := sl.Records(ctx, q)
	if err != nil {
		return Comparison{}, fmt.Errorf("failed to load slice selection: %w", err)
	}
	byTime := func(rs []datapool.Record) {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Timestamp.Before(rs[j].Timestamp) })
	}
	byTime(fromPool)
	byTime(fromSlice)

	c := Comparison{
		Query:         q,
		DatapoolCount: len(fromPool),
		SliceCount:    len(fromSlice),
	}
	if len(fromPool) != len(fromSlice) {
		c.SquaredDiff = math.NaN()
		return c, nil
	}

	c.SameVariable, c.SameUnit = true, true
	for i := range fromPool {
		a, b := fromPool[i], fromSlice[i]
		if a.Variable != b.Variable {
			c.SameVariable = false
		}
		if a.Unit != b.Unit {
			c.SameUnit = false
		}
		switch {
		case math.IsNaN(a.Value) && math.IsNaN(b.Value):
		case math.IsNaN(a.Value) || math.IsNaN(b.Value):
			c.SquaredDiff = math.Inf(1)
		default:
			d := a.Value - b.Value
			c.SquaredDiff += d * d
		}
	}
	return c, nil
}
