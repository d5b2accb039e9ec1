package datapool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns        = 10
	defaultMinConns        = 2
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
	defaultConnectTimeout  = 5 * time.Second
)

// Querier is the subset of pgxpool.Pool the client needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type ClientConfig struct {
	Logger     *slog.Logger
	ConnString string
	MaxConns   int32
	MinConns   int32
}

func (c *ClientConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.ConnString == "" {
		return errors.New("connection string is required")
	}
	if c.MaxConns == 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = defaultMinConns
	}
	return nil
}

// Client runs the datapool queries against Postgres.
type Client struct {
	log  *slog.Logger
	db   Querier
	pool *pgxpool.Pool
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg *ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = defaultMaxConnLifetime
	poolConfig.MaxConnIdleTime = defaultMaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	cfg.Logger.Debug("connected to datapool", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)

	return &Client{log: cfg.Logger, db: pool, pool: pool}, nil
}

// NewClient wraps an existing querier, e.g. a transaction or a test pool.
func NewClient(log *slog.Logger, db Querier) *Client {
	return &Client{log: log, db: db}
}

func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

func (c *Client) Sources(ctx context.Context) ([]Source, error) {
	rows, err := c.db.Query(ctx, `
		SELECT s.source_id, s.name, COALESCE(st.name, ''), COALESCE(s.description, '')
		FROM source AS s
		LEFT JOIN source_type AS st ON s.source_type_id = st.source_type_id
		ORDER BY s.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	sources, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Source, error) {
		var s Source
		err := row.Scan(&s.ID, &s.Name, &s.Type, &s.Description)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sources: %w", err)
	}
	return sources, nil
}

func (c *Client) Variables(ctx context.Context) ([]Variable, error) {
	rows, err := c.db.Query(ctx, `
		SELECT variable_id, name, COALESCE(unit, ''), COALESCE(description, '')
		FROM variable
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query variables: %w", err)
	}
	vars, err := pgx.CollectRows(rows, scanVariable)
	if err != nil {
		return nil, fmt.Errorf("failed to scan variables: %w", err)
	}
	return vars, nil
}

func scanVariable(row pgx.CollectableRow) (Variable, error) {
	var v Variable
	err := row.Scan(&v.ID, &v.Name, &v.Unit, &v.Description)
	return v, err
}

// MainParameters returns the main measurement parameters the source has recorded between
// from and to. A zero bound leaves that side open.
func (c *Client) MainParameters(ctx context.Context, source string, from, to time.Time) ([]Variable, error) {
	rows, err := c.db.Query(ctx, `
		SELECT v.variable_id, v.name, COALESCE(v.unit, ''), COALESCE(v.description, '')
		FROM variable AS v
		WHERE v.description LIKE $2
		  AND EXISTS (
			SELECT 1 FROM signal AS sg
			INNER JOIN source AS s ON sg.source_id = s.source_id
			WHERE s.name = $1 AND sg.variable_id = v.variable_id
			  AND ($3::timestamp IS NULL OR sg.timestamp >= $3)
			  AND ($4::timestamp IS NULL OR sg.timestamp <= $4)
		  )
		ORDER BY v.variable_id`, source, MainParameterPrefix+"%", nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query main parameters of %s: %w", source, err)
	}
	vars, err := pgx.CollectRows(rows, scanVariable)
	if err != nil {
		return nil, fmt.Errorf("failed to scan main parameters of %s: %w", source, err)
	}
	return vars, nil
}

// Records returns the rows of one source and variable between From and To inclusive.
func (c *Client) Records(ctx context.Context, q SignalQuery) ([]Record, error) {
	rows, err := c.db.Query(ctx, `
		SELECT sg.timestamp, sg.value, COALESCE(v.unit, ''), v.name, s.name
		FROM signal AS sg
		INNER JOIN variable AS v ON sg.variable_id = v.variable_id
		INNER JOIN source AS s ON sg.source_id = s.source_id
		WHERE s.name = $1 AND v.name = $2
		  AND sg.timestamp >= $3 AND sg.timestamp <= $4
		ORDER BY sg.timestamp ASC`, q.Source, q.Variable, q.From, q.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals of %s/%s: %w", q.Source, q.Variable, err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signals of %s/%s: %w", q.Source, q.Variable, err)
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var r Record
	var value *float64
	if err := row.Scan(&r.Timestamp, &value, &r.Unit, &r.Variable, &r.Source); err != nil {
		return r, err
	}
	r.Value = nullFloat(value)
	return r, nil
}

func nullFloat(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// GroupSignals returns the rows of every source in a sensor group with one of the given
// units, optionally averaged per hour.
func (c *Client) GroupSignals(ctx context.Context, q GroupQuery) ([]Record, error) {
	if len(q.Group) != 2 {
		return nil, fmt.Errorf("invalid sensor group %q", q.Group)
	}
	if len(q.Units) == 0 {
		return nil, errors.New("at least one unit is required")
	}

	sql := `
		SELECT sg.timestamp, sg.value, COALESCE(v.unit, ''), v.name, s.name
		FROM signal AS sg
		INNER JOIN source AS s ON sg.source_id = s.source_id
		INNER JOIN variable AS v ON sg.variable_id = v.variable_id
		WHERE LEFT(s.name, 2) = $1 AND sg.timestamp > $2 AND v.unit = ANY($3)
		ORDER BY s.name, sg.timestamp`
	if q.Hourly {
		sql = `
		SELECT date_trunc('hour', sg.timestamp) AS ts, avg(sg.value), COALESCE(v.unit, ''), v.name, s.name
		FROM signal AS sg
		INNER JOIN source AS s ON sg.source_id = s.source_id
		INNER JOIN variable AS v ON sg.variable_id = v.variable_id
		WHERE LEFT(s.name, 2) = $1 AND sg.timestamp > $2 AND v.unit = ANY($3)
		GROUP BY 1, s.name, v.name, v.unit
		ORDER BY s.name, 1`
	}

	rows, err := c.db.Query(ctx, sql, q.Group, q.Since, q.Units)
	if err != nil {
		return nil, fmt.Errorf("failed to query group %s: %w", q.Group, err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to scan group %s: %w", q.Group, err)
	}
	return records, nil
}

// WeeklyCounts counts the values per week, source and variable in [from, to).
func (c *Client) WeeklyCounts(ctx context.Context, from, to time.Time) ([]WeeklyCount, error) {
	rows, err := c.db.Query(ctx, `
		SELECT date_trunc('week', sg.timestamp) AS week, s.name, v.name, count(*)
		FROM signal AS sg
		INNER JOIN source AS s ON sg.source_id = s.source_id
		INNER JOIN variable AS v ON sg.variable_id = v.variable_id
		WHERE sg.timestamp >= $1 AND sg.timestamp < $2
		GROUP BY 1, s.name, v.name
		ORDER BY 1, s.name, v.name`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly counts: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (WeeklyCount, error) {
		var wc WeeklyCount
		err := row.Scan(&wc.Week, &wc.Source, &wc.Variable, &wc.Count)
		return wc, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan weekly counts: %w", err)
	}
	return counts, nil
}

// SourceVariables maps every source to the variables it has recorded.
func (c *Client) SourceVariables(ctx context.Context) (map[string][]string, error) {
	rows, err := c.db.Query(ctx, `
		SELECT DISTINCT s.name, v.name
		FROM signal AS sg
		INNER JOIN source AS s ON sg.source_id = s.source_id
		INNER JOIN variable AS v ON sg.variable_id = v.variable_id
		ORDER BY 1, 2`)
	if err != nil {
		return nil, fmt.Errorf("failed to query source variables: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var source, variable string
		if err := rows.Scan(&source, &variable); err != nil {
			return nil, fmt.Errorf("failed to scan source variables: %w", err)
		}
		out[source] = append(out[source], variable)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source variables: %w", err)
	}
	return out, nil
}

func (c *Client) SourceTypes(ctx context.Context) ([]SourceType, error) {
	rows, err := c.db.Query(ctx, `
		SELECT source_type_id, name, COALESCE(description, '')
		FROM source_type
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query source types: %w", err)
	}
	types, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SourceType, error) {
		var st SourceType
		err := row.Scan(&st.ID, &st.Name, &st.Description)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan source types: %w", err)
	}
	return types, nil
}

// Duplicates returns the rows of one source and variable that are stored more than once
// with identical timestamp and value.
func (c *Client) Duplicates(ctx context.Context, source, variable string) ([]Duplicate, error) {
	rows, err := c.db.Query(ctx, `
		SELECT sg.timestamp, sg.value, COALESCE(v.unit, ''), v.name, s.name, count(*)
		FROM signal AS sg
		INNER JOIN variable AS v ON sg.variable_id = v.variable_id
		INNER JOIN source AS s ON sg.source_id = s.source_id
		WHERE s.name = $1 AND v.name = $2
		GROUP BY sg.timestamp, sg.value, v.unit, v.name, s.name
		HAVING count(*) > 1
		ORDER BY sg.timestamp ASC`, source, variable)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicates of %s/%s: %w", source, variable, err)
	}
	dups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Duplicate, error) {
		var d Duplicate
		var value *float64
		if err := row.Scan(&d.Timestamp, &value, &d.Unit, &d.Variable, &d.Source, &d.Occurrences); err != nil {
			return d, err
		}
		d.Value = nullFloat(value)
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan duplicates of %s/%s: %w", source, variable, err)
	}
	return dups, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
