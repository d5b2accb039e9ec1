package stats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptySample = errors.New("empty sample")
)

type KSResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	N         int     `json:"n"`
	M         int     `json:"m"`
}

// KSTest runs a two-sided two-sample Kolmogorov-Smirnov test. The p-value uses the
// asymptotic Kolmogorov distribution with the small-sample correction of Stephens.
func KSTest(a, b []float64) (*KSResult, error) {
	x := Finite(a)
	y := Finite(b)
	if len(x) == 0 || len(y) == 0 {
		return nil, ErrEmptySample
	}
	sort.Float64s(x)
	sort.Float64s(y)

	d := stat.KolmogorovSmirnov(x, nil, y, nil)
	n, m := float64(len(x)), float64(len(y))
	en := math.Sqrt(n * m / (n + m))

	return &KSResult{
		Statistic: d,
		PValue:    kolmogorovQ((en + 0.12 + 0.11/en) * d),
		N:         len(x),
		M:         len(y),
	}, nil
}

// kolmogorovQ is the survival function of the Kolmogorov distribution.
func kolmogorovQ(lambda float64) float64 {
	if lambda < 1e-3 {
		return 1
	}
	a2 := -2 * lambda * lambda
	fac := 2.0
	var sum, prev float64
	for j := 1; j <= 100; j++ {
		term := fac * math.Exp(a2*float64(j*j))
		sum += term
		if math.Abs(term) <= 1e-3*prev || math.Abs(term) <= 1e-8*sum {
			return math.Max(0, math.Min(1, sum))
		}
		fac = -fac
		prev = math.Abs(term)
	}
	return 1
}
