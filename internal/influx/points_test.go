package influx_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/influx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	ch chan string
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.ch <- string(p)
	return len(p), nil
}

type mockWriter struct {
	errs chan error
}

func (m *mockWriter) WritePoint(*write.Point) {}
func (m *mockWriter) Flush()                  {}
func (m *mockWriter) Errors() <-chan error    { return m.errs }

func TestSensorHealth_Influx_Points(t *testing.T) {
	t.Parallel()

	runAt := time.Date(2024, 5, 15, 6, 0, 0, 0, time.UTC)

	t.Run("psr", func(t *testing.T) {
		t.Parallel()
		line := write.PointToLineProtocol(influx.PSRPoint("prod", runAt, health.PSRRow{
			Source: "bl_b", LastRecorded: "2024-05-19", OldMean: 1.016, Current: 0.5, ZScore: -3.601, Suspicious: true,
		}), time.Second)
		assert.True(t, strings.HasPrefix(line, "sensor_psr,env=prod,source=bl_b "), line)
		assert.Contains(t, line, "current=0.5")
		assert.Contains(t, line, "z_score=-3.601")
		assert.Contains(t, line, "suspicious=true")
		assert.Contains(t, line, `last_recorded="2024-05-19"`)
		assert.True(t, strings.HasSuffix(strings.TrimSpace(line), " 1715752800"), line)
	})

	t.Run("drift", func(t *testing.T) {
		t.Parallel()
		line := write.PointToLineProtocol(influx.DriftPoint("prod", runAt, health.DriftResult{
			Source: "bl_a", SimilarTo: "bl_ref", Statistic: 0.4, PValue: 0.01, CurrentN: 145, HistoricN: 2000, Drifting: true,
		}), time.Second)
		assert.True(t, strings.HasPrefix(line, "sensor_drift,env=prod,similar_to=bl_ref,source=bl_a "), line)
		assert.Contains(t, line, "current_n=145i")
		assert.Contains(t, line, "drifting=true")
	})

	t.Run("write errors are logged", func(t *testing.T) {
		t.Parallel()
		out := &syncBuffer{ch: make(chan string, 1)}
		log := slog.New(slog.NewTextHandler(out, nil))
		w := &mockWriter{errs: make(chan error, 1)}
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		influx.LogErrors(ctx, log, w)
		w.errs <- errors.New("unauthorized")

		select {
		case msg := <-out.ch:
			assert.Contains(t, msg, "influx write error")
			assert.Contains(t, msg, "unauthorized")
		case <-time.After(5 * time.Second):
			require.FailNow(t, "error was not logged")
		}
	})

	t.Run("closed error channel stops the logger", func(t *testing.T) {
		t.Parallel()
		w := &mockWriter{errs: make(chan error)}
		close(w.errs)
		influx.LogErrors(t.Context(), slog.New(slog.NewTextHandler(io.Discard, nil)), w)
	})
}
