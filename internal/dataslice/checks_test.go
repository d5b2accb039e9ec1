package dataslice_test

import (
	"testing"

	"github.com/eawag-uwo/sensorhealth/internal/dataslice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorHealth_DataSlice_Checks(t *testing.T) {
	t.Parallel()
	set := openTestSet(t)
	ctx := t.Context()

	t.Run("sources available", func(t *testing.T) {
		findings, err := set.CheckSourcesAvailable(ctx, []string{"bn_r02_school", "bq_missing"})
		require.NoError(t, err)
		require.Len(t, findings, 2)
		for i, year := range []int{2019, 2020} {
			assert.Equal(t, year, findings[i].Year)
			assert.Equal(t, "bq_missing", findings[i].Source)
			assert.False(t, findings[i].OK)
		}
	})

	t.Run("variables available", func(t *testing.T) {
		findings, err := set.CheckVariablesAvailable(ctx, []string{"bt_dl01_creek"}, map[string][]string{
			"bt_dl01_creek": {"water_temperature"},
		})
		require.NoError(t, err)
		require.Len(t, findings, 2)
		assert.Equal(t, dataslice.FindingVariableCount, findings[0].Kind)
		assert.Equal(t, 2.0, findings[0].Value)
		assert.Equal(t, dataslice.FindingVariableMissing, findings[1].Kind)
		assert.False(t, findings[1].OK)
	})

	t.Run("rain sums", func(t *testing.T) {
		findings, err := set.CheckRainSums(ctx, []string{"bn_r02_school"})
		require.NoError(t, err)
		require.Len(t, findings, 2)
		assert.True(t, findings[0].OK)
		assert.Equal(t, 1500.0, findings[0].Value)
		assert.False(t, findings[1].OK)
		assert.Equal(t, 10.0, findings[1].Value)
		assert.Contains(t, findings[1].Message, "conspicuous with 10.00 mm in data slice 2020")
	})

	t.Run("flow volumes", func(t *testing.T) {
		findings, err := set.CheckFlowVolumes(ctx, []string{"bf_f02_mesikerstr"}, "bf_ref_inflow_ara")
		require.NoError(t, err)
		require.Len(t, findings, 2)
		assert.True(t, findings[0].OK)
		assert.Equal(t, 3.0, findings[0].Value)
		assert.False(t, findings[1].OK)
		assert.Contains(t, findings[1].Message, "too high with 2.00 m3")
	})
}
