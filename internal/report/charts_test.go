package report_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/report"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireImage(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSensorHealth_Report_Charts(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	t.Run("psr heatmap", func(t *testing.T) {
		t.Parallel()
		m := health.NewMatrix("PSR of bl sensors", stats.ResolutionWeek, []*stats.PSRResult{
			{Source: "bl_a", Periods: []stats.PSRPeriod{{Timestamp: start, NormalizedCount: 0.9}, {Timestamp: start.AddDate(0, 0, 7), NormalizedCount: 1.2}}},
			{Source: "bl_b", Periods: []stats.PSRPeriod{{Timestamp: start.AddDate(0, 0, 7), NormalizedCount: math.NaN()}}},
		})
		path := filepath.Join(dir, "heatmap.png")
		require.NoError(t, report.PSRHeatmap(path, m))
		requireImage(t, path)

		require.ErrorIs(t, report.PSRHeatmap(path, &health.Matrix{}), report.ErrNoData)
	})

	t.Run("content heatmap", func(t *testing.T) {
		t.Parallel()
		w1, w2 := start, start.AddDate(0, 0, 7)
		m := report.ContentMatrix("content", []datapool.WeeklyCount{
			{Week: w1, Source: "bl_a", Variable: "water_level", Count: 500},
			{Week: w2, Source: "bl_a", Variable: "water_level", Count: 1000},
			{Week: w2, Source: "bn_r", Variable: "rainfall_intensity", Count: 10},
			{Week: w1, Source: "test_dummy", Variable: "x", Count: 10},
		}, []string{"test_dummy"})
		assert.Equal(t, []string{"bl_a / water_level", "bn_r / rainfall_intensity"}, m.Rows)
		assert.Equal(t, []time.Time{w1, w2}, m.Columns)
		assert.Equal(t, []float64{0.5, 1}, m.Values[0])
		assert.True(t, math.IsNaN(m.Values[1][0]))
		assert.Equal(t, 1.0, m.Values[1][1])

		path := filepath.Join(dir, "content.png")
		require.NoError(t, report.ContentHeatmap(path, m))
		requireImage(t, path)
	})

	t.Run("interval histogram", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "hist.png")
		require.NoError(t, report.IntervalHistogram(path, "bl_a", []stats.IntervalBin{{Minutes: 1, Count: 3}, {Minutes: 10, Count: 300}}))
		requireImage(t, path)
		require.ErrorIs(t, report.IntervalHistogram(path, "bl_a", nil), report.ErrNoData)
	})

	t.Run("timeseries and flattened", func(t *testing.T) {
		t.Parallel()
		raw := hourly(start, 72, func(i int) float64 { return float64(i % 24) })
		path := filepath.Join(dir, "ts.svg")
		require.NoError(t, report.Timeseries(path, "levels", "m", []report.Series{{Name: "bl_a", Samples: raw}}))
		requireImage(t, path)

		flat := hourly(start, 72, func(int) float64 { return 11.5 })
		path = filepath.Join(dir, "flat.png")
		require.NoError(t, report.FlattenedSignal(path, "bl_a", raw, flat))
		requireImage(t, path)

		nan := hourly(start, 3, func(int) float64 { return math.NaN() })
		require.ErrorIs(t, report.Timeseries(path, "", "", []report.Series{{Name: "x", Samples: nan}}), report.ErrNoData)
	})

	t.Run("monthly boxplot", func(t *testing.T) {
		t.Parallel()
		samples := hourly(start, 24*45, func(i int) float64 { return float64(i % 7) })
		path := filepath.Join(dir, "box.png")
		require.NoError(t, report.MonthlyBoxplot(path, "bt temperatures", "°C", []report.Series{{Name: "bt_a", Samples: samples}}))
		requireImage(t, path)
		require.ErrorIs(t, report.MonthlyBoxplot(path, "", "", nil), report.ErrNoData)
	})

	t.Run("unsupported format", func(t *testing.T) {
		t.Parallel()
		err := report.IntervalHistogram(filepath.Join(dir, "hist.bmp"), "x", []stats.IntervalBin{{Minutes: 1, Count: 1}})
		require.Error(t, err)
	})
}
