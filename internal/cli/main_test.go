package cli

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/decentlab"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/jonboulle/clockwork"
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

// mockProvider implements the provider calls the commands under test use. Calls it does
// not set panic through the nil embedded interface.
type mockProvider struct {
	datapool.Provider

	SourcesFunc       func(context.Context) ([]datapool.Source, error)
	MainParameterFunc func(context.Context, string) (datapool.Variable, error)
	SignalsFunc       func(context.Context, datapool.SignalQuery) ([]stats.Sample, error)
}

func (m *mockProvider) Sources(ctx context.Context) ([]datapool.Source, error) {
	return m.SourcesFunc(ctx)
}

func (m *mockProvider) MainParameter(ctx context.Context, source string) (datapool.Variable, error) {
	return m.MainParameterFunc(ctx, source)
}

func (m *mockProvider) Signals(ctx context.Context, q datapool.SignalQuery) ([]stats.Sample, error) {
	return m.SignalsFunc(ctx, q)
}

var testNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func newTestApp(p datapool.Provider, dl *decentlab.ClientConfig) (*app, *bytes.Buffer) {
	out := &bytes.Buffer{}
	a := &app{
		out:   out,
		clock: clockwork.NewFakeClockAt(testNow),
		openDatapool: func(context.Context, *slog.Logger, *config.Env) (datapool.Provider, func(), error) {
			return p, func() {}, nil
		},
		newDecentlab: func(log *slog.Logger, _ *config.Env) (*decentlab.Client, error) {
			cfg := *dl
			cfg.Logger = log
			return decentlab.NewClient(&cfg)
		},
	}
	return a, out
}

// execute runs the root command with the given arguments and no env file.
func execute(t *testing.T, a *app, args ...string) error {
	t.Helper()
	cmd := a.rootCmd()
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(t.Context())
}
