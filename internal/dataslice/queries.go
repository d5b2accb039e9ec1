package dataslice

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
)

type SpecialValue struct {
	SourceType       string   `json:"source_type"`
	Description      string   `json:"description"`
	CategoricalValue string   `json:"categorical_value"`
	NumericalValue   *float64 `json:"numerical_value"`
}

// SiteRecord is a signal row with its source type, as exported per site or package.
type SiteRecord struct {
	datapool.Record
	SourceType string `json:"source_type"`
}

type LatestSignal struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// WeekCount counts values per week of year (%W, Monday based) in one slice.
type WeekCount struct {
	Week     string `json:"week"`
	Source   string `json:"source"`
	Variable string `json:"variable"`
	Count    int64  `json:"count"`
}

func (s *Slice) SpecialValues(ctx context.Context) ([]SpecialValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(st.name, ''), COALESCE(sv.description, ''), COALESCE(sv.categorical_value, ''), sv.numerical_value
		FROM special_value_definition AS sv
		LEFT JOIN source_type AS st ON sv.source_type_id = st.source_type_id
		ORDER BY st.name, sv.numerical_value`)
	if err != nil {
		return nil, fmt.Errorf("failed to query special values: %w", err)
	}
	defer rows.Close()

	var out []SpecialValue
	for rows.Next() {
		var sv SpecialValue
		var num sql.NullFloat64
		if err := rows.Scan(&sv.SourceType, &sv.Description, &sv.CategoricalValue, &num); err != nil {
			return nil, fmt.Errorf("failed to scan special value: %w", err)
		}
		if num.Valid {
			sv.NumericalValue = &num.Float64
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

const siteRecordColumns = `
		SELECT sg.timestamp, sg.value, COALESCE(v.unit, ''), v.name, st.name, s.name
		FROM signal AS sg
		INNER JOIN site ON sg.site_id = site.site_id
		INNER JOIN variable AS v ON sg.variable_id = v.variable_id
		INNER JOIN source AS s ON sg.source_id = s.source_id
		INNER JOIN source_type AS st ON s.source_type_id = st.source_type_id`

// SiteData returns every value recorded at a site between from and to inclusive.
func (s *Slice) SiteData(ctx context.Context, site string, from, to time.Time) ([]SiteRecord, error) {
	rows, err := s.db.QueryContext(ctx, siteRecordColumns+`
		WHERE site.name = ? AND sg.timestamp >= ? AND sg.timestamp <= ?
		ORDER BY sg.timestamp, s.name, v.name`, site, formatTimestamp(from), formatTimestamp(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query site %s: %w", site, err)
	}
	return scanSiteRecords(rows)
}

// PackageData returns every value of the given sources.
func (s *Slice) PackageData(ctx context.Context, sources []string) ([]SiteRecord, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	args := make([]any, len(sources))
	for i, src := range sources {
		args[i] = src
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sources)), ",")
	rows, err := s.db.QueryContext(ctx, siteRecordColumns+`
		WHERE s.name IN (`+placeholders+`)
		ORDER BY s.name, sg.timestamp, v.name`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query package data: %w", err)
	}
	return scanSiteRecords(rows)
}

func scanSiteRecords(rows *sql.Rows) ([]SiteRecord, error) {
	defer rows.Close()
	var out []SiteRecord
	for rows.Next() {
		var r SiteRecord
		var ts any
		var value sql.NullFloat64
		if err := rows.Scan(&ts, &value, &r.Unit, &r.Variable, &r.SourceType, &r.Source); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		t, err := parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		r.Timestamp = t
		r.Value = nullFloat(value)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SourcesWithVariable lists the sources that recorded the variable at least once.
func (s *Slice) SourcesWithVariable(ctx context.Context, variable string) ([]string, error) {
	return s.names(ctx, `
		SELECT s.name FROM source AS s
		WHERE s.source_id IN (
			SELECT DISTINCT sg.source_id FROM signal AS sg
			INNER JOIN variable AS v ON sg.variable_id = v.variable_id
			WHERE v.name = ?
		)
		ORDER BY s.name`, variable)
}

func (s *Slice) SourceNames(ctx context.Context) ([]string, error) {
	return s.names(ctx, `SELECT DISTINCT name FROM source ORDER BY name`)
}

func (s *Slice) names(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query source names: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan source name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// LatestByType returns the last timestamp of every source of one type, oldest first.
func (s *Slice) LatestByType(ctx context.Context, sourceType string) ([]LatestSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, MAX(sg.timestamp)
		FROM signal AS sg
		INNER JOIN source AS s ON sg.source_id = s.source_id
		INNER JOIN source_type AS st ON s.source_type_id = st.source_type_id
		WHERE st.name = ?
		GROUP BY s.name
		ORDER BY MAX(sg.timestamp) ASC`, sourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest signals of %s: %w", sourceType, err)
	}
	defer rows.Close()
	var out []LatestSignal
	for rows.Next() {
		var l LatestSignal
		var ts any
		if err := rows.Scan(&l.Source, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan latest signal: %w", err)
		}
		if l.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// WeeklyCounts counts the values per week of year, source and variable, latest week first.
func (s *Slice) WeeklyCounts(ctx context.Context) ([]WeekCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH count_table AS (
			SELECT COUNT(variable_id) AS n, variable_id, source_id, STRFTIME('%W', timestamp) AS week
			FROM signal
			GROUP BY STRFTIME('%W', timestamp), variable_id, source_id
		)
		SELECT c.week, s.name, v.name, c.n
		FROM count_table AS c
		INNER JOIN variable AS v ON v.variable_id = c.variable_id
		INNER JOIN source AS s ON s.source_id = c.source_id
		ORDER BY c.week DESC, s.name, v.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly counts: %w", err)
	}
	defer rows.Close()
	var out []WeekCount
	for rows.Next() {
		var wc WeekCount
		if err := rows.Scan(&wc.Week, &wc.Source, &wc.Variable, &wc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan weekly count: %w", err)
		}
		out = append(out, wc)
	}
	return out, rows.Err()
}

// Records returns the values of one source and variable ordered by time. Zero From or To
// leave that side of the range open.
func (s *Slice) Records(ctx context.Context, q datapool.SignalQuery) ([]datapool.Record, error) {
	query := `
		SELECT sg.timestamp, sg.value, COALESCE(v.unit, ''), v.name, s.name
		FROM signal AS sg
		INNER JOIN variable AS v ON sg.variable_id = v.variable_id
		INNER JOIN source AS s ON sg.source_id = s.source_id
		WHERE s.name = ? AND v.name = ?`
	args := []any{q.Source, q.Variable}
	if !q.From.IsZero() {
		query += ` AND sg.timestamp >= ?`
		args = append(args, formatTimestamp(q.From))
	}
	if !q.To.IsZero() {
		query += ` AND sg.timestamp <= ?`
		args = append(args, formatTimestamp(q.To))
	}
	query += ` ORDER BY sg.timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals of %s/%s: %w", q.Source, q.Variable, err)
	}
	defer rows.Close()

	var out []datapool.Record
	for rows.Next() {
		var r datapool.Record
		var ts any
		var value sql.NullFloat64
		if err := rows.Scan(&ts, &value, &r.Unit, &r.Variable, &r.Source); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if r.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		r.Value = nullFloat(value)
		out = append(out, r)
	}
	return out, rows.Err()
}
