package psr

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/influx"
	"github.com/eawag-uwo/sensorhealth/internal/monitor/alert"
	"github.com/jonboulle/clockwork"
)

type Checker interface {
	Run(ctx context.Context) (*health.PSRReport, error)
}

type HistoryWriter interface {
	WritePSR(ctx context.Context, runAt time.Time, r *health.PSRReport) error
}

type Archiver interface {
	Key(filePath string) string
	Upload(ctx context.Context, filePath, key string) (string, error)
}

type Config struct {
	Logger   *slog.Logger
	Metrics  *Metrics
	Checker  Checker
	Interval time.Duration
	Clock    clockwork.Clock
	Env      string

	// Optional sinks.
	OutDir       string
	InfluxWriter influx.PointWriter
	History      HistoryWriter
	Archiver     Archiver
	Notifier     alert.Notifier
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Metrics == nil {
		return errors.New("metrics is required")
	}
	if c.Checker == nil {
		return errors.New("checker is required")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if c.Archiver != nil && c.OutDir == "" {
		return errors.New("out dir is required when archiving")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}
