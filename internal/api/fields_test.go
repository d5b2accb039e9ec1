package api

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorHealth_API_FieldEncoder(t *testing.T) {
	t.Parallel()

	type rec struct {
		Timestamp string  `json:"timestamp"`
		Value     float64 `json:"value"`
		Unit      string  `json:"unit"`
	}
	recs := []rec{{"2024-01-01T00:00:00Z", 1.5, "m"}, {"2024-01-01T00:05:00Z", 2, "m"}}

	t.Run("array of records", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, newFieldEncoder(&buf, []string{"value", "timestamp", "missing"}).Encode(recs))
		assert.Equal(t, `[{"value":1.5,"timestamp":"2024-01-01T00:00:00Z"},{"value":2,"timestamp":"2024-01-01T00:05:00Z"}]`+"\n", buf.String())
	})

	t.Run("single object", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, newFieldEncoder(&buf, []string{"unit"}).Encode(recs[0]))
		assert.Equal(t, `{"unit":"m"}`+"\n", buf.String())
	})

	t.Run("no fields keeps everything", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, newFieldEncoder(&buf, nil).Encode(recs[:1]))
		assert.JSONEq(t, `[{"timestamp":"2024-01-01T00:00:00Z","value":1.5,"unit":"m"}]`, buf.String())
	})

	t.Run("scalars pass through", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, newFieldEncoder(&buf, []string{"x"}).Encode([]any{1, "a", map[string]int{"x": 2, "y": 3}}))
		assert.Equal(t, `[1,"a",{"x":2}]`+"\n", buf.String())
	})
}
