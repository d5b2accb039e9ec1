package drift

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/influx"
	"github.com/eawag-uwo/sensorhealth/internal/monitor/alert"
	"github.com/jonboulle/clockwork"
)

type Checker interface {
	Check(ctx context.Context, pairs []config.DriftPair) ([]health.DriftResult, error)
}

type HistoryWriter interface {
	WriteDrift(ctx context.Context, runAt time.Time, results []health.DriftResult) error
}

type Config struct {
	Logger   *slog.Logger
	Metrics  *Metrics
	Checker  Checker
	Pairs    []config.DriftPair
	Interval time.Duration
	Clock    clockwork.Clock
	Env      string

	OutDir       string
	InfluxWriter influx.PointWriter
	History      HistoryWriter
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
	if len(c.Pairs) == 0 {
		return errors.New("at least one pair is required")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}
