package api_test

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
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

type mockProvider struct {
	SourcesFunc       func(context.Context) ([]datapool.Source, error)
	MainSignalsFunc   func(context.Context, string, time.Time, time.Time) ([]stats.Sample, error)
	SignalsFunc       func(context.Context, datapool.SignalQuery) ([]stats.Sample, error)
	MainParameterFunc func(context.Context, string) (datapool.Variable, error)
}

func (m *mockProvider) Sources(ctx context.Context) ([]datapool.Source, error) {
	return m.SourcesFunc(ctx)
}

func (m *mockProvider) MainSignals(ctx context.Context, source string, from, to time.Time) ([]stats.Sample, error) {
	return m.MainSignalsFunc(ctx, source, from, to)
}

func (m *mockProvider) Signals(ctx context.Context, q datapool.SignalQuery) ([]stats.Sample, error) {
	return m.SignalsFunc(ctx, q)
}

func (m *mockProvider) MainParameter(ctx context.Context, source string) (datapool.Variable, error) {
	return m.MainParameterFunc(ctx, source)
}
