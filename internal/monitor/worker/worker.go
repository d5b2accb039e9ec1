package worker

import (
	"context"
	"log/slog"

	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/monitor/drift"
	"github.com/eawag-uwo/sensorhealth/internal/monitor/psr"
)

type Watcher interface {
	Name() string
	Run(ctx context.Context) error
}

type Worker struct {
	log *slog.Logger
	cfg *Config

	watchers []Watcher
}

func New(cfg *Config) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	psrChecker, err := health.NewPSRChecker(&health.PSRCheckerConfig{
		Logger:       cfg.Logger,
		Provider:     cfg.Provider,
		Clock:        cfg.Clock,
		Location:     cfg.Location,
		Sources:      cfg.Sources,
		HistoryWeeks: cfg.HistoryWeeks,
		Resolution:   cfg.Resolution,
		Anomaly:      cfg.Anomaly,
	})
	if err != nil {
		return nil, err
	}

	psrMetrics := psr.NewMetrics()
	psrMetrics.Register(cfg.Registerer)
	psrWatcher, err := psr.NewPSRWatcher(&psr.Config{
		Logger:       cfg.Logger,
		Metrics:      psrMetrics,
		Checker:      psrChecker,
		Interval:     cfg.PSRInterval,
		Clock:        cfg.Clock,
		Env:          cfg.Env,
		OutDir:       cfg.OutDir,
		InfluxWriter: cfg.InfluxWriter,
		History:      cfg.History,
		Archiver:     cfg.Archiver,
		Notifier:     cfg.Notifier,
	})
	if err != nil {
		return nil, err
	}

	watchers := []Watcher{psrWatcher}

	if cfg.Drift != nil {
		driftChecker, err := health.NewDriftChecker(&health.DriftCheckerConfig{
			Logger:       cfg.Logger,
			Provider:     cfg.Provider,
			Clock:        cfg.Clock,
			Location:     cfg.Location,
			HistoryWeeks: cfg.HistoryWeeks,
			Alpha:        cfg.Drift.Alpha,
			MinStatistic: cfg.Drift.MinStatistic,
			Window:       cfg.Drift.Window,
		})
		if err != nil {
			return nil, err
		}
		driftMetrics := drift.NewMetrics()
		driftMetrics.Register(cfg.Registerer)
		driftWatcher, err := drift.NewDriftWatcher(&drift.Config{
			Logger:       cfg.Logger,
			Metrics:      driftMetrics,
			Checker:      driftChecker,
			Pairs:        cfg.Drift.Pairs(),
			Interval:     cfg.DriftInterval,
			Clock:        cfg.Clock,
			Env:          cfg.Env,
			OutDir:       cfg.OutDir,
			InfluxWriter: cfg.InfluxWriter,
			History:      cfg.History,
			Notifier:     cfg.Notifier,
		})
		if err != nil {
			return nil, err
		}
		watchers = append(watchers, driftWatcher)
	}

	return &Worker{
		log:      cfg.Logger,
		cfg:      cfg,
		watchers: watchers,
	}, nil
}

func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting worker")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, watcher := range w.watchers {
		go func(watcher Watcher) {
			name := watcher.Name()
			w.log.Info("Starting watcher", "name", name)
			err := watcher.Run(ctx)
			if err != nil {
				w.log.Error("Failed to run watcher", "name", name, "error", err)
				cancel()
			}
		}(watcher)
	}

	<-ctx.Done()
	w.log.Info("Shutting down worker")

	return nil
}
