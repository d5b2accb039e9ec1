package dataslice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02 15:04:05"

// Slice is one yearly SQLite export of the datapool, opened read-only.
type Slice struct {
	Year int
	Path string

	db *sql.DB
}

func Open(ctx context.Context, year int, path string) (*Slice, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open slice %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open slice %s: %w", path, err)
	}
	return &Slice{Year: year, Path: path, db: db}, nil
}

func (s *Slice) Close() error {
	return s.db.Close()
}

// Set holds the slices of several years, ordered by year.
type Set struct {
	log    *slog.Logger
	slices []*Slice
}

func OpenSet(ctx context.Context, log *slog.Logger, files map[int]string) (*Set, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if len(files) == 0 {
		return nil, errors.New("at least one slice file is required")
	}
	years := make([]int, 0, len(files))
	for year := range files {
		years = append(years, year)
	}
	sort.Ints(years)

	set := &Set{log: log}
	for _, year := range years {
		s, err := Open(ctx, year, files[year])
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		set.slices = append(set.slices, s)
	}
	return set, nil
}

func (s *Set) Slices() []*Slice {
	return s.slices
}

// Slice returns the slice of the given year, or nil.
func (s *Set) Slice(year int) *Slice {
	for _, sl := range s.slices {
		if sl.Year == year {
			return sl
		}
	}
	return nil
}

func (s *Set) Close() error {
	var errs []error
	for _, sl := range s.slices {
		if err := sl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// parseTimestamp accepts what the sqlite driver hands back for timestamp columns: a time
// for declared datetime columns, text otherwise.
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTimestampText(t)
	case []byte:
		return parseTimestampText(string(t))
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case nil:
		return time.Time{}, errors.New("null timestamp")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

var timestampLayouts = []string{
	timestampLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

func parseTimestampText(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
