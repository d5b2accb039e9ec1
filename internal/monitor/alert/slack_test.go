package alert_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eawag-uwo/sensorhealth/internal/monitor/alert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorHealth_Alert_Slack(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		{"source", "z_score"},
		{"bl_b", "-3.601"},
	}

	t.Run("renders table", func(t *testing.T) {
		t.Parallel()
		out := alert.RenderTable(rows)
		assert.Contains(t, out, "source")
		assert.Contains(t, out, "bl_b")
		assert.Contains(t, out, "-3.601")
	})

	t.Run("message without rows has header only", func(t *testing.T) {
		t.Parallel()
		msg := alert.TableMessage("nothing", nil)
		require.NotNil(t, msg.Blocks)
		assert.Len(t, msg.Blocks.BlockSet, 1)
		assert.Equal(t, "nothing", msg.Text)
	})

	t.Run("missing webhook", func(t *testing.T) {
		t.Parallel()
		_, err := alert.NewSlackNotifier("", nil)
		require.EqualError(t, err, "slack webhook url is required")
	})

	t.Run("posts webhook", func(t *testing.T) {
		t.Parallel()
		var body map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			data, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(data, &body))
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		n, err := alert.NewSlackNotifier(srv.URL, srv.Client())
		require.NoError(t, err)
		require.NoError(t, n.Notify(t.Context(), "Suspicious sensors", rows))

		assert.Equal(t, "Suspicious sensors", body["text"])
		blocks, ok := body["blocks"].([]any)
		require.True(t, ok)
		require.Len(t, blocks, 2)
		section := blocks[1].(map[string]any)
		text := section["text"].(map[string]any)["text"].(string)
		assert.True(t, strings.HasPrefix(text, "```"))
		assert.Contains(t, text, "bl_b")
	})

	t.Run("webhook failure", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid_payload", http.StatusBadRequest)
		}))
		defer srv.Close()

		n, err := alert.NewSlackNotifier(srv.URL, srv.Client())
		require.NoError(t, err)
		err = n.Notify(t.Context(), "x", rows)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to post slack message")
	})
}
