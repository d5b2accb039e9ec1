package stats_test

import (
	"math"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorHealth_Stats_ResampleHourly(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	samples := []stats.Sample{
		{Timestamp: base.Add(10 * time.Minute), Value: 1},
		{Timestamp: base.Add(50 * time.Minute), Value: 3},
		{Timestamp: base.Add(80 * time.Minute), Value: 5},
		{Timestamp: base.Add(85 * time.Minute), Value: math.NaN()},
		{Timestamp: base.Add(200 * time.Minute), Value: 7},
	}
	got := stats.ResampleHourly(samples)
	require.Len(t, got, 3)
	assert.Equal(t, stats.Sample{Timestamp: base, Value: 2}, got[0])
	assert.Equal(t, stats.Sample{Timestamp: base.Add(time.Hour), Value: 5}, got[1])
	assert.Equal(t, stats.Sample{Timestamp: base.Add(3 * time.Hour), Value: 7}, got[2])
}

func TestSensorHealth_Stats_Join(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	x := []stats.Sample{{Timestamp: base, Value: 1}, {Timestamp: base.Add(time.Hour), Value: 2}, {Timestamp: base.Add(2 * time.Hour), Value: 3}}
	y := []stats.Sample{{Timestamp: base.Add(2 * time.Hour), Value: 30}, {Timestamp: base, Value: 10}}
	got := stats.Join(x, y)
	assert.Equal(t, []stats.Pair{
		{Timestamp: base, X: 1, Y: 10},
		{Timestamp: base.Add(2 * time.Hour), X: 3, Y: 30},
	}, got)
}

func TestSensorHealth_Stats_Standardize(t *testing.T) {
	t.Parallel()
	got := stats.Standardize([]float64{1, 2, 3})
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, got, 1e-12)

	single := stats.Standardize([]float64{4})
	assert.True(t, math.IsNaN(single[0]))
}

func TestSensorHealth_Stats_Rolling(t *testing.T) {
	t.Parallel()

	t.Run("trailing mean", func(t *testing.T) {
		t.Parallel()
		got := stats.RollingMean([]float64{1, 2, 3, 4}, 2, false)
		assert.True(t, math.IsNaN(got[0]))
		assert.Equal(t, []float64{1.5, 2.5, 3.5}, got[1:])
	})

	t.Run("centered median", func(t *testing.T) {
		t.Parallel()
		got := stats.RollingMedian([]float64{5, 1, 3, 2, 4}, 3, true)
		assert.True(t, math.IsNaN(got[0]))
		assert.Equal(t, []float64{3, 2, 3}, got[1:4])
		assert.True(t, math.IsNaN(got[4]))
	})

	t.Run("non-positive window is all NaN", func(t *testing.T) {
		t.Parallel()
		for _, got := range [][]float64{
			stats.RollingMedian([]float64{1, 2, 3}, -1, true),
			stats.RollingMean([]float64{1, 2, 3}, 0, false),
		} {
			require.Len(t, got, 3)
			for _, v := range got {
				assert.True(t, math.IsNaN(v))
			}
		}
	})

	t.Run("centered even window leans back", func(t *testing.T) {
		t.Parallel()
		got := stats.RollingMean([]float64{1, 2, 3, 4}, 2, true)
		assert.True(t, math.IsNaN(got[0]))
		assert.Equal(t, []float64{1.5, 2.5, 3.5}, got[1:])
	})

	t.Run("nan inside the window", func(t *testing.T) {
		t.Parallel()
		got := stats.RollingMean([]float64{1, math.NaN(), 3, 4}, 2, false)
		assert.True(t, math.IsNaN(got[1]))
		assert.True(t, math.IsNaN(got[2]))
		assert.Equal(t, 3.5, got[3])
	})
}

func TestSensorHealth_Stats_SignalDiff(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	var x, y []stats.Sample
	for i := 0; i < 48; i++ {
		v := math.Sin(float64(i)/5) + 2
		y = append(y, stats.Sample{Timestamp: base.Add(time.Duration(i) * time.Hour), Value: v})
		x = append(x, stats.Sample{Timestamp: base.Add(time.Duration(i)*time.Hour + 15*time.Minute), Value: 3*v + 1})
	}

	diffs := stats.SignalDiff(x, y, 4)
	require.NotEmpty(t, diffs)
	assert.LessOrEqual(t, len(diffs), 45)
	for _, d := range diffs {
		assert.InDelta(t, 0, d.Abs, 1e-9)
	}
	assert.True(t, diffs[0].Timestamp.After(base.Add(2*time.Hour)))
}
