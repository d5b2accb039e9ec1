package history_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/history"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockBatch struct {
	driver.Batch
	conn *mockConn
	rows [][]any
}

func (b *mockBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *mockBatch) Send() error {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	b.conn.sends++
	if b.conn.SendErr != nil {
		if err := b.conn.SendErr(b.conn.sends); err != nil {
			return err
		}
	}
	b.conn.sent = append(b.conn.sent, b.rows...)
	return nil
}

func (b *mockBatch) Close() error { return nil }

type mockConn struct {
	mu      sync.Mutex
	execs   []string
	queries []string
	sent    [][]any
	sends   int
	SendErr func(attempt int) error
}

func (c *mockConn) Exec(_ context.Context, query string, _ ...any) error {
	c.execs = append(c.execs, query)
	return nil
}

func (c *mockConn) PrepareBatch(_ context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.queries = append(c.queries, query)
	return &mockBatch{conn: c}, nil
}

func (c *mockConn) Close() error { return nil }

func psrReport() *health.PSRReport {
	return &health.PSRReport{
		Resolution:   stats.ResolutionWeek,
		Suspicious:   []health.PSRRow{{Source: "bl_b", LastRecorded: "2024-05-19", OldMean: 1.016, Current: 0.5, ZScore: -3.601, Suspicious: true}},
		Unsuspicious: []health.PSRRow{{Source: "bl_a", LastRecorded: "2024-05-19", OldMean: 1.016, Current: 1, ZScore: -0.25}},
		Skipped:      []health.SkippedRow{{Source: "bl_c", Reason: "no data"}},
	}
}

func TestSensorHealth_History_Sink(t *testing.T) {
	t.Parallel()

	runAt := time.Date(2024, 5, 15, 6, 0, 0, 0, time.UTC)

	t.Run("address required", func(t *testing.T) {
		t.Parallel()
		_, err := history.New(history.WithLogger(logger))
		require.EqualError(t, err, "clickhouse address is required: use WithAddr")
	})

	t.Run("schema", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{}
		sink, err := history.New(history.WithConn(conn), history.WithLogger(logger))
		require.NoError(t, err)
		require.NoError(t, sink.EnsureSchema(t.Context()))
		require.Len(t, conn.execs, 2)
		assert.Contains(t, conn.execs[0], "CREATE TABLE IF NOT EXISTS psr_results")
		assert.Contains(t, conn.execs[1], "CREATE TABLE IF NOT EXISTS drift_results")
	})

	t.Run("psr rows", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{}
		sink, err := history.New(history.WithConn(conn), history.WithLogger(logger))
		require.NoError(t, err)
		require.NoError(t, sink.WritePSR(t.Context(), runAt, psrReport()))

		assert.Equal(t, []string{"INSERT INTO psr_results"}, conn.queries)
		require.Len(t, conn.sent, 3)
		assert.Equal(t, []any{runAt, "bl_b", "W", time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC), 1.016, 0.5, -3.601, true, ""}, conn.sent[0])
		assert.Equal(t, "bl_a", conn.sent[1][1])
		assert.Equal(t, "bl_c", conn.sent[2][1])
		assert.Equal(t, "no data", conn.sent[2][8])
	})

	t.Run("drift rows", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{}
		sink, err := history.New(history.WithConn(conn), history.WithLogger(logger))
		require.NoError(t, err)
		err = sink.WriteDrift(t.Context(), runAt, []health.DriftResult{
			{Source: "bl_a", SimilarTo: "bl_ref", Parameter: "water_level", Statistic: 0.4, PValue: 0.01, CurrentN: 145, HistoricN: 2000, Drifting: true},
		})
		require.NoError(t, err)
		require.Len(t, conn.sent, 1)
		assert.Equal(t, []any{runAt, "bl_a", "bl_ref", "water_level", 0.4, 0.01, uint32(145), uint32(2000), true, ""}, conn.sent[0])
	})

	t.Run("nothing to write", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{}
		sink, err := history.New(history.WithConn(conn), history.WithLogger(logger))
		require.NoError(t, err)
		require.NoError(t, sink.WriteDrift(t.Context(), runAt, nil))
		assert.Empty(t, conn.queries)
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{SendErr: func(attempt int) error {
			if attempt == 1 {
				return errors.New("connection reset by peer")
			}
			return nil
		}}
		sink, err := history.New(history.WithConn(conn), history.WithLogger(logger), history.WithRetry(3, time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, sink.WritePSR(t.Context(), runAt, psrReport()))
		assert.Equal(t, 2, conn.sends)
		assert.Len(t, conn.sent, 3)
	})

	t.Run("missing table is not retried", func(t *testing.T) {
		t.Parallel()
		conn := &mockConn{SendErr: func(int) error {
			return &clickhouse.Exception{Code: 60, Message: "Table default.psr_results does not exist"}
		}}
		sink, err := history.New(history.WithConn(conn), history.WithLogger(logger), history.WithRetry(3, time.Millisecond))
		require.NoError(t, err)
		err = sink.WritePSR(t.Context(), runAt, psrReport())
		require.ErrorContains(t, err, "does not exist")
		assert.Equal(t, 1, conn.sends)
	})
}

func TestSensorHealth_History_IsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unknown table", &clickhouse.Exception{Code: 60}, false},
		{"wrapped unknown table", fmt.Errorf("write failed: %w", &clickhouse.Exception{Code: 60}), false},
		{"other exception", &clickhouse.Exception{Code: 999}, true},
		{"network", errors.New("i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, history.IsRetryable(tt.err))
		})
	}
}
