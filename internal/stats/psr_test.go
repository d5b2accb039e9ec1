package stats_test

import (
	"math"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// regular returns samples every step from start (inclusive) to end (exclusive).
func regular(start, end time.Time, step time.Duration, value float64) []stats.Sample {
	var out []stats.Sample
	for ts := start; ts.Before(end); ts = ts.Add(step) {
		out = append(out, stats.Sample{Timestamp: ts, Value: value})
	}
	return out
}

func TestSensorHealth_Stats_Resolution(t *testing.T) {
	t.Parallel()
	wed := time.Date(2024, 1, 3, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		res   stats.Resolution
		start time.Time
		label time.Time
	}{
		{stats.ResolutionDay, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
		{stats.ResolutionWeek, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)},
		{stats.ResolutionMonth, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{stats.ResolutionQuarter, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)},
		{stats.ResolutionYear, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.res), func(t *testing.T) {
			t.Parallel()
			start := tt.res.PeriodStart(wed)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.label, tt.res.PeriodLabel(start))
		})
	}

	t.Run("sunday belongs to the week before", func(t *testing.T) {
		t.Parallel()
		sun := time.Date(2024, 1, 7, 23, 59, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), stats.ResolutionWeek.PeriodStart(sun))
	})

	t.Run("leap february", func(t *testing.T) {
		t.Parallel()
		feb := stats.ResolutionMonth.PeriodStart(time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), stats.ResolutionMonth.PeriodLabel(feb))
	})

	t.Run("parse", func(t *testing.T) {
		t.Parallel()
		r, err := stats.ParseResolution("Q")
		require.NoError(t, err)
		assert.Equal(t, stats.ResolutionQuarter, r)
		_, err = stats.ParseResolution("H")
		require.Error(t, err)
	})
}

func TestSensorHealth_Stats_ComputePSR(t *testing.T) {
	t.Parallel()
	mon := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour

	t.Run("complete weeks", func(t *testing.T) {
		t.Parallel()
		samples := regular(mon, mon.Add(3*week), 10*time.Minute, 1)
		res, err := stats.ComputePSR("bl_l01", samples, stats.PSRConfig{Resolution: stats.ResolutionWeek})
		require.NoError(t, err)
		assert.Equal(t, 10, res.IntervalMinutes)
		require.Len(t, res.Periods, 3)

		// the first sample has no predecessor, so the first week spans six day changes
		assert.Equal(t, time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), res.Periods[0].Timestamp)
		assert.Equal(t, 1008, res.Periods[0].Count)
		assert.Equal(t, 6.0, res.Periods[0].DayDifference)
		assert.InDelta(t, 1.1666667, res.Periods[0].NormalizedCount, 1e-6)

		for _, p := range res.Periods[1:] {
			assert.Equal(t, "bl_l01", p.Sensor)
			assert.Equal(t, 7.0, p.DayDifference)
			assert.InDelta(t, 1.0, p.NormalizedCount, 1e-9)
		}
	})

	t.Run("half the packets lost", func(t *testing.T) {
		t.Parallel()
		samples := regular(mon, mon.Add(2*week), 10*time.Minute, 1)
		samples = append(samples, regular(mon.Add(2*week), mon.Add(3*week), 20*time.Minute, 1)...)
		res, err := stats.ComputePSR("bl_l01", samples, stats.PSRConfig{Resolution: stats.ResolutionWeek})
		require.NoError(t, err)
		require.Len(t, res.Periods, 3)
		assert.Equal(t, 504, res.Periods[2].Count)
		assert.InDelta(t, 0.5, res.Periods[2].NormalizedCount, 1e-9)
	})

	t.Run("missing week", func(t *testing.T) {
		t.Parallel()
		samples := regular(mon, mon.Add(week), 10*time.Minute, 1)
		samples = append(samples, regular(mon.Add(2*week), mon.Add(3*week), 10*time.Minute, 1)...)
		res, err := stats.ComputePSR("bl_l01", samples, stats.PSRConfig{Resolution: stats.ResolutionWeek})
		require.NoError(t, err)
		require.Len(t, res.Periods, 3)
		assert.Equal(t, 0, res.Periods[1].Count)
		assert.True(t, math.IsNaN(res.Periods[1].NormalizedCount))
		// the gap is charged to the week the sensor came back in
		assert.Equal(t, 14.0, res.Periods[2].DayDifference)
		assert.InDelta(t, 0.5, res.Periods[2].NormalizedCount, 1e-9)
	})

	t.Run("special values are dropped", func(t *testing.T) {
		t.Parallel()
		samples := regular(mon.Add(week), mon.Add(2*week), 10*time.Minute, 1)
		for i := 0; i < 144; i++ {
			samples[i].Value = -999999
		}
		res, err := stats.ComputePSR("bl_l01", samples, stats.PSRConfig{Resolution: stats.ResolutionWeek})
		require.NoError(t, err)
		require.Len(t, res.Periods, 1)
		assert.Equal(t, 1008-144, res.Periods[0].Count)
	})

	t.Run("duplicate reports are merged unless allowed", func(t *testing.T) {
		t.Parallel()
		samples := regular(mon, mon.Add(week), 10*time.Minute, 1)
		var doubled []stats.Sample
		for i, s := range samples {
			doubled = append(doubled, s)
			if i%4 == 0 {
				doubled = append(doubled, stats.Sample{Timestamp: s.Timestamp.Add(time.Minute), Value: s.Value})
			}
		}
		res, err := stats.ComputePSR("bl_l01", doubled, stats.PSRConfig{Resolution: stats.ResolutionWeek})
		require.NoError(t, err)
		assert.Equal(t, 1008, res.Periods[0].Count)

		res, err = stats.ComputePSR("bl_l01", doubled, stats.PSRConfig{Resolution: stats.ResolutionWeek, AllowHigherSamplingRates: true})
		require.NoError(t, err)
		assert.Equal(t, 1008+252, res.Periods[0].Count)
	})

	t.Run("no samples fails", func(t *testing.T) {
		t.Parallel()
		_, err := stats.ComputePSR("bl_l01", nil, stats.PSRConfig{})
		require.ErrorIs(t, err, stats.ErrNoSamples)
	})

	t.Run("invalid resolution fails", func(t *testing.T) {
		t.Parallel()
		_, err := stats.ComputePSR("bl_l01", regular(mon, mon.Add(time.Hour), 10*time.Minute, 1), stats.PSRConfig{Resolution: "H"})
		require.Error(t, err)
	})
}
