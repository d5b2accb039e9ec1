package dataslice_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/dataslice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRecordSource struct {
	RecordsFunc func(context.Context, datapool.SignalQuery) ([]datapool.Record, error)
}

func (m *mockRecordSource) Records(ctx context.Context, q datapool.SignalQuery) ([]datapool.Record, error) {
	return m.RecordsFunc(ctx, q)
}

func TestSensorHealth_DataSlice_CompareWithDatapool(t *testing.T) {
	t.Parallel()
	set := openTestSet(t)
	sl := set.Slice(2019)
	q := datapool.SignalQuery{Source: "bt_dl01_creek", Variable: "water_temperature"}

	datapoolRecords := func(unit string, first float64) []datapool.Record {
		// reversed, the comparison orders by time
		return []datapool.Record{
			{Timestamp: time.Date(2019, 3, 5, 10, 0, 0, 0, time.UTC), Value: math.NaN(), Unit: unit, Variable: "water_temperature", Source: q.Source},
			{Timestamp: time.Date(2019, 3, 4, 10, 0, 0, 0, time.UTC), Value: first, Unit: unit, Variable: "water_temperature", Source: q.Source},
		}
	}

	t.Run("consistent", func(t *testing.T) {
		dp := &mockRecordSource{RecordsFunc: func(ctx context.Context, got datapool.SignalQuery) ([]datapool.Record, error) {
			assert.Equal(t, q, got)
			return datapoolRecords("°C", 12.5), nil
		}}
		c, err := dataslice.CompareWithDatapool(t.Context(), dp, sl, q)
		require.NoError(t, err)
		assert.True(t, c.Consistent())
		assert.Equal(t, 2, c.DatapoolCount)
		assert.Equal(t, 2, c.SliceCount)
	})

	t.Run("different unit and value", func(t *testing.T) {
		dp := &mockRecordSource{RecordsFunc: func(ctx context.Context, _ datapool.SignalQuery) ([]datapool.Record, error) {
			return datapoolRecords("K", 14.5), nil
		}}
		c, err := dataslice.CompareWithDatapool(t.Context(), dp, sl, q)
		require.NoError(t, err)
		assert.True(t, c.SameVariable)
		assert.False(t, c.SameUnit)
		assert.Equal(t, 4.0, c.SquaredDiff)
		assert.False(t, c.Consistent())
	})

	t.Run("row count differs", func(t *testing.T) {
		dp := &mockRecordSource{RecordsFunc: func(ctx context.Context, _ datapool.SignalQuery) ([]datapool.Record, error) {
			return datapoolRecords("°C", 12.5)[:1], nil
		}}
		c, err := dataslice.CompareWithDatapool(t.Context(), dp, sl, q)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(c.SquaredDiff))
		assert.False(t, c.Consistent())
	})
}
