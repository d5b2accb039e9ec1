package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/influx"
	"github.com/eawag-uwo/sensorhealth/internal/monitor/alert"
	"github.com/eawag-uwo/sensorhealth/internal/monitor/psr"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

type HistoryWriter interface {
	WritePSR(ctx context.Context, runAt time.Time, r *health.PSRReport) error
	WriteDrift(ctx context.Context, runAt time.Time, results []health.DriftResult) error
}

type Config struct {
	Logger     *slog.Logger
	Provider   health.SignalProvider
	Clock      clockwork.Clock
	Location   *time.Location
	Registerer prometheus.Registerer
	Env        string

	PSRInterval  time.Duration
	Sources      []string
	HistoryWeeks int
	Resolution   stats.Resolution
	Anomaly      stats.AnomalyConfig

	// Drift is optional; the drift watcher only runs when it is set.
	Drift         *config.DriftConfig
	DriftInterval time.Duration

	OutDir       string
	InfluxWriter influx.PointWriter
	History      HistoryWriter
	Archiver     psr.Archiver
	Notifier     alert.Notifier
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Provider == nil {
		return errors.New("provider is required")
	}
	if c.PSRInterval <= 0 {
		return errors.New("psr interval must be greater than 0")
	}
	if c.Drift != nil && c.DriftInterval <= 0 {
		return errors.New("drift interval must be greater than 0")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.DefaultRegisterer
	}
	return nil
}
