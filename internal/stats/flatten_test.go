package stats_test

import (
	"math"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorHealth_Stats_Flatten(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	raw := []float64{1, 50, 2, 3, 200, 4, 5}
	samples := make([]stats.Sample, len(raw))
	for i, v := range raw {
		// reversed on purpose, Flatten sorts by time
		samples[len(raw)-1-i] = stats.Sample{Timestamp: base.Add(time.Duration(i) * time.Hour), Value: v}
	}

	t.Run("clip median mean", func(t *testing.T) {
		t.Parallel()
		out, err := stats.Flatten(samples, stats.FlattenConfig{MeanWindow: 2})
		require.NoError(t, err)
		require.Len(t, out, 7)
		assert.Equal(t, base, out[0].Timestamp)
		assert.True(t, math.IsNaN(out[0].Value))
		assert.True(t, math.IsNaN(out[1].Value))
		assert.Equal(t, 2.5, out[2].Value)
		assert.Equal(t, 3.0, out[3].Value)
		assert.Equal(t, 3.5, out[4].Value)
		assert.Equal(t, 4.5, out[5].Value)
		assert.True(t, math.IsNaN(out[6].Value))
	})

	t.Run("normalized by median", func(t *testing.T) {
		t.Parallel()
		out, err := stats.Flatten(samples, stats.FlattenConfig{MeanWindow: 2, Normalize: stats.NormalizeMedian})
		require.NoError(t, err)
		assert.InDelta(t, 0.625, out[2].Value, 1e-12)
		assert.InDelta(t, 1.125, out[5].Value, 1e-12)
	})

	t.Run("invalid bounds fail", func(t *testing.T) {
		t.Parallel()
		lo, hi := 10.0, 1.0
		_, err := stats.Flatten(samples, stats.FlattenConfig{Min: &lo, Max: &hi})
		require.Error(t, err)
	})

	t.Run("negative window fails", func(t *testing.T) {
		t.Parallel()
		_, err := stats.Flatten(samples, stats.FlattenConfig{MedianWindow: -1})
		require.EqualError(t, err, "median window must be positive")
		_, err = stats.Flatten(samples, stats.FlattenConfig{MeanWindow: -3})
		require.EqualError(t, err, "mean window must be positive")
	})

	t.Run("invalid normalization fails", func(t *testing.T) {
		t.Parallel()
		_, err := stats.Flatten(samples, stats.FlattenConfig{Normalize: "mode"})
		require.Error(t, err)
	})
}
