package history

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cenkalti/backoff/v5"
	"github.com/eawag-uwo/sensorhealth/internal/health"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultMaxTries    = 3

	chErrCodeUnknownTable = 60

	PSRTable   = "psr_results"
	DriftTable = "drift_results"
)

// Conn is the part of the ClickHouse connection the sink uses.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Close() error
}

// Sink records the outcome of every health check run in ClickHouse.
type Sink struct {
	addr     string
	db       string
	user     string
	pass     string
	secure   bool
	maxTries uint
	retryMin time.Duration
	conn     Conn
	log      *slog.Logger
}

type Option func(*Sink)

func WithAddr(addr string) Option {
	return func(s *Sink) { s.addr = addr }
}

func WithDatabase(db string) Option {
	return func(s *Sink) { s.db = db }
}

func WithUser(user string) Option {
	return func(s *Sink) { s.user = user }
}

func WithPassword(pass string) Option {
	return func(s *Sink) { s.pass = pass }
}

// WithSecure enables TLS for the connection.
func WithSecure(secure bool) Option {
	return func(s *Sink) { s.secure = secure }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Sink) { s.log = log }
}

// WithConn uses an existing connection instead of dialing one.
func WithConn(conn Conn) Option {
	return func(s *Sink) { s.conn = conn }
}

// WithRetry sets how often a failed insert is attempted and the first wait between tries.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(s *Sink) {
		s.maxTries = maxTries
		s.retryMin = initial
	}
}

func New(opts ...Option) (*Sink, error) {
	s := &Sink{
		db:       "default",
		user:     "default",
		maxTries: defaultMaxTries,
		retryMin: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.conn != nil {
		return s, nil
	}
	if s.addr == "" {
		return nil, errors.New("clickhouse address is required: use WithAddr")
	}

	chOpts := &clickhouse.Options{
		Addr: []string{s.addr},
		Auth: clickhouse.Auth{
			Database: s.db,
			Username: s.user,
			Password: s.pass,
		},
		DialTimeout: defaultDialTimeout,
	}
	if s.secure {
		chOpts.TLS = &tls.Config{}
	}
	conn, err := clickhouse.Open(chOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	s.conn = conn
	return s, nil
}

func (s *Sink) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates the result tables when they do not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + PSRTable + ` (
			run_at DateTime64(3, 'UTC'),
			source LowCardinality(String),
			resolution LowCardinality(String),
			last_period Date,
			old_mean Float64,
			current Float64,
			z_score Float64,
			suspicious Bool,
			skipped_reason String
		) ENGINE = MergeTree ORDER BY (source, run_at)`,
		`CREATE TABLE IF NOT EXISTS ` + DriftTable + ` (
			run_at DateTime64(3, 'UTC'),
			source LowCardinality(String),
			similar_to LowCardinality(String),
			parameter LowCardinality(String),
			statistic Float64,
			p_value Float64,
			current_n UInt32,
			historic_n UInt32,
			drifting Bool,
			error String
		) ENGINE = MergeTree ORDER BY (source, run_at)`,
	}
	for _, stmt := range stmts {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// WritePSR inserts one row per evaluated or skipped source.
func (s *Sink) WritePSR(ctx context.Context, runAt time.Time, r *health.PSRReport) error {
	var rows [][]any
	for _, group := range [][]health.PSRRow{r.Suspicious, r.Unsuspicious} {
		for _, row := range group {
			period, err := time.Parse("2006-01-02", row.LastRecorded)
			if err != nil {
				return fmt.Errorf("invalid period of %s: %w", row.Source, err)
			}
			rows = append(rows, []any{runAt.UTC(), row.Source, string(r.Resolution), period, row.OldMean, row.Current, row.ZScore, row.Suspicious, ""})
		}
	}
	for _, sk := range r.Skipped {
		rows = append(rows, []any{runAt.UTC(), sk.Source, string(r.Resolution), time.Unix(0, 0).UTC(), 0.0, 0.0, 0.0, false, sk.Reason})
	}
	return s.insert(ctx, PSRTable, rows)
}

func (s *Sink) WriteDrift(ctx context.Context, runAt time.Time, results []health.DriftResult) error {
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, []any{runAt.UTC(), r.Source, r.SimilarTo, r.Parameter, r.Statistic, r.PValue, uint32(r.CurrentN), uint32(r.HistoricN), r.Drifting, r.Error})
	}
	return s.insert(ctx, DriftTable, rows)
}

// insert sends all rows in one batch, retrying the whole batch on transient errors.
func (s *Sink) insert(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryMin

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.sendBatch(ctx, table, rows)
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			s.log.Warn("clickhouse insert failed, retrying", "table", table, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(s.maxTries))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", table, err)
	}
	s.log.Debug("wrote health history", "table", table, "rows", len(rows))
	return nil
}

func (s *Sink) sendBatch(ctx context.Context, table string, rows [][]any) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+table)
	if err != nil {
		return fmt.Errorf("error preparing batch: %w", err)
	}
	for i, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Close()
			return fmt.Errorf("error appending row %d: %w", i, err)
		}
	}
	if err := batch.Send(); err != nil {
		_ = batch.Close()
		return fmt.Errorf("error sending batch: %w", err)
	}
	return batch.Close()
}

// IsRetryable reports whether a failed insert may succeed when tried again. A missing
// table needs EnsureSchema first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var exception *clickhouse.Exception
	if errors.As(err, &exception) && exception.Code == chErrCodeUnknownTable {
		return false
	}
	return true
}
