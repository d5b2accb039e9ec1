package datapool_test

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/lmittmann/tint"
)

var (
	logger *slog.Logger
)

func TestMain(m *testing.M) {
	flag.Parse()
	verbose := false
	if vFlag := flag.Lookup("test.v"); vFlag != nil && vFlag.Value.String() == "true" {
		verbose = true
	}
	if verbose {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC3339,
			AddSource:  true,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	os.Exit(m.Run())
}

type mockStore struct {
	SourcesFunc         func(context.Context) ([]datapool.Source, error)
	VariablesFunc       func(context.Context) ([]datapool.Variable, error)
	MainParametersFunc  func(context.Context, string, time.Time, time.Time) ([]datapool.Variable, error)
	RecordsFunc         func(context.Context, datapool.SignalQuery) ([]datapool.Record, error)
	GroupSignalsFunc    func(context.Context, datapool.GroupQuery) ([]datapool.Record, error)
	WeeklyCountsFunc    func(context.Context, time.Time, time.Time) ([]datapool.WeeklyCount, error)
	SourceVariablesFunc func(context.Context) (map[string][]string, error)
	SourceTypesFunc     func(context.Context) ([]datapool.SourceType, error)
	DuplicatesFunc      func(context.Context, string, string) ([]datapool.Duplicate, error)
}

func (m *mockStore) Sources(ctx context.Context) ([]datapool.Source, error) {
	return m.SourcesFunc(ctx)
}

func (m *mockStore) Variables(ctx context.Context) ([]datapool.Variable, error) {
	return m.VariablesFunc(ctx)
}

func (m *mockStore) MainParameters(ctx context.Context, source string, from, to time.Time) ([]datapool.Variable, error) {
	return m.MainParametersFunc(ctx, source, from, to)
}

func (m *mockStore) Records(ctx context.Context, q datapool.SignalQuery) ([]datapool.Record, error) {
	return m.RecordsFunc(ctx, q)
}

func (m *mockStore) GroupSignals(ctx context.Context, q datapool.GroupQuery) ([]datapool.Record, error) {
	return m.GroupSignalsFunc(ctx, q)
}

func (m *mockStore) WeeklyCounts(ctx context.Context, from, to time.Time) ([]datapool.WeeklyCount, error) {
	return m.WeeklyCountsFunc(ctx, from, to)
}

func (m *mockStore) SourceVariables(ctx context.Context) (map[string][]string, error) {
	return m.SourceVariablesFunc(ctx)
}

func (m *mockStore) SourceTypes(ctx context.Context) ([]datapool.SourceType, error) {
	return m.SourceTypesFunc(ctx)
}

func (m *mockStore) Duplicates(ctx context.Context, source, variable string) ([]datapool.Duplicate, error) {
	return m.DuplicatesFunc(ctx, source, variable)
}
