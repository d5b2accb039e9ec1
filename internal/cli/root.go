package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/decentlab"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// app carries what the commands share. Tests swap the constructors for fakes.
type app struct {
	out   io.Writer
	clock clockwork.Clock

	openDatapool func(ctx context.Context, log *slog.Logger, env *config.Env) (datapool.Provider, func(), error)
	newDecentlab func(log *slog.Logger, env *config.Env) (*decentlab.Client, error)
}

func Run(ctx context.Context) ExitCode {
	a := &app{
		out:          os.Stdout,
		clock:        clockwork.NewRealClock(),
		openDatapool: openDatapool,
		newDecentlab: newDecentlab,
	}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "uwo-data",
		Short:        "Data CLI for the urban water observatory sensor network.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.SetOut(a.out)

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var envFile string
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with datapool and decentlab credentials")

	var location string
	rootCmd.PersistentFlags().StringVar(&location, "location", config.DefaultLocation, "time zone the datapool timestamps are recorded in")

	rootCmd.AddCommand(
		a.sourcesCmd(),
		a.psrCmd(),
		a.psrReportCmd(),
		a.driftCmd(),
		a.exportCmd(),
		a.catalogCmd(),
		a.duplicatesCmd(),
		a.heatmapCmd(),
		a.contentHeatmapCmd(),
		a.histogramCmd(),
		a.timeseriesCmd(),
		a.boxplotCmd(),
		a.flattenCmd(),
		a.slicesCmd(),
		a.decentlabCmd(),
	)
	return rootCmd
}

// setup reads the root flags and loads the environment.
func (a *app) setup(cmd *cobra.Command) (*slog.Logger, *config.Env, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	envFile, err := cmd.Root().PersistentFlags().GetString("env-file")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get env-file flag: %w", err)
	}
	log := newLogger(a.out, verbose)
	env, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	return log, env, nil
}

func location(cmd *cobra.Command) (*time.Location, error) {
	name, err := cmd.Root().PersistentFlags().GetString("location")
	if err != nil {
		return nil, fmt.Errorf("failed to get location flag: %w", err)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load location %q: %w", name, err)
	}
	return loc, nil
}

// withDatapool runs fn with a connected datapool provider.
func (a *app) withDatapool(cmd *cobra.Command, fn func(ctx context.Context, log *slog.Logger, env *config.Env, p datapool.Provider) error) error {
	log, env, err := a.setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	provider, closeFn, err := a.openDatapool(ctx, log, env)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, log, env, provider)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func openDatapool(ctx context.Context, log *slog.Logger, env *config.Env) (datapool.Provider, func(), error) {
	client, err := datapool.Connect(ctx, &datapool.ClientConfig{
		Logger:     log,
		ConnString: env.Datapool.ConnString(),
	})
	if err != nil {
		return nil, nil, err
	}
	provider, err := datapool.NewProvider(&datapool.ProviderConfig{
		Logger: log,
		Store:  client,
	})
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return provider, client.Close, nil
}

func newDecentlab(log *slog.Logger, env *config.Env) (*decentlab.Client, error) {
	return decentlab.NewClient(&decentlab.ClientConfig{
		Logger: log,
		Domain: env.Decentlab.Domain,
		APIKey: env.Decentlab.APIKey,
	})
}
