package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/jonboulle/clockwork"
)

const (
	defaultPoolSize = 8
	dateLayout      = "2006-01-02"
)

// SignalProvider is the part of the datapool provider the checks read from.
type SignalProvider interface {
	Sources(ctx context.Context) ([]datapool.Source, error)
	MainSignals(ctx context.Context, source string, from, to time.Time) ([]stats.Sample, error)
	Signals(ctx context.Context, q datapool.SignalQuery) ([]stats.Sample, error)
}

type PSRCheckerConfig struct {
	Logger   *slog.Logger
	Provider SignalProvider
	Clock    clockwork.Clock
	Location *time.Location

	// Sources restricts the check; all datapool sources when empty.
	Sources                  []string
	HistoryWeeks             int
	Resolution               stats.Resolution
	AllowHigherSamplingRates bool
	Anomaly                  stats.AnomalyConfig
	PoolSize                 int
}

func (c *PSRCheckerConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Provider == nil {
		return errors.New("provider is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.HistoryWeeks == 0 {
		c.HistoryWeeks = DefaultHistoryWeeks
	}
	if c.HistoryWeeks < 0 {
		return errors.New("history weeks must be positive")
	}
	if c.Resolution == "" {
		c.Resolution = stats.ResolutionWeek
	}
	if _, err := stats.ParseResolution(string(c.Resolution)); err != nil {
		return err
	}
	if err := c.Anomaly.Validate(); err != nil {
		return err
	}
	if c.PoolSize == 0 {
		c.PoolSize = defaultPoolSize
	}
	return nil
}

// PSRRow is one evaluated sensor, rounded for reporting.
type PSRRow struct {
	Source       string  `json:"source_name"`
	LastRecorded string  `json:"last_recorded_PSR"`
	OldMean      float64 `json:"mean_history"`
	Current      float64 `json:"last_period_PSR"`
	ZScore       float64 `json:"z_score"`
	Suspicious   bool    `json:"suspicious"`
}

type SkippedRow struct {
	Source string `json:"source_name"`
	Reason string `json:"reason"`
}

type PSRReport struct {
	GeneratedAt  time.Time        `json:"generated_at"`
	Window       Window           `json:"window"`
	Resolution   stats.Resolution `json:"resolution"`
	Suspicious   []PSRRow         `json:"suspicious"`
	Unsuspicious []PSRRow         `json:"unsuspicious"`
	Skipped      []SkippedRow     `json:"skipped"`
}

type PSRChecker struct {
	cfg  *PSRCheckerConfig
	log  *slog.Logger
	pool pond.ResultPool[psrOutcome]
}

type psrOutcome struct {
	source string
	result *stats.PSRResult
	eval   *stats.PSREvaluation
	err    error
}

func NewPSRChecker(cfg *PSRCheckerConfig) (*PSRChecker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PSRChecker{
		cfg:  cfg,
		log:  cfg.Logger,
		pool: pond.NewResultPool[psrOutcome](cfg.PoolSize),
	}, nil
}

func (c *PSRChecker) sources(ctx context.Context) ([]string, error) {
	if len(c.cfg.Sources) > 0 {
		return c.cfg.Sources, nil
	}
	all, err := c.cfg.Provider.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	names := make([]string, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, s := range all {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		names = append(names, s.Name)
	}
	return names, nil
}

// Run evaluates the PSR of every source over the history window ending yesterday.
func (c *PSRChecker) Run(ctx context.Context) (*PSRReport, error) {
	now := c.cfg.Clock.Now()
	window := PSRWindow(now, c.cfg.Location, c.cfg.HistoryWeeks)

	sources, err := c.sources(ctx)
	if err != nil {
		return nil, err
	}
	c.log.Info("running psr check", "sources", len(sources), "from", window.From, "to", window.To, "resolution", c.cfg.Resolution)

	outcomes, err := c.compute(ctx, sources, window, c.cfg.Resolution, true)
	if err != nil {
		return nil, err
	}

	report := &PSRReport{
		GeneratedAt: now,
		Window:      window,
		Resolution:  c.cfg.Resolution,
	}
	for _, o := range outcomes {
		if o.err != nil {
			c.log.Debug("skipping source", "source", o.source, "error", o.err)
			report.Skipped = append(report.Skipped, SkippedRow{Source: o.source, Reason: o.err.Error()})
			continue
		}
		row := PSRRow{
			Source:       o.source,
			LastRecorded: o.eval.LastPeriod.Format(dateLayout),
			OldMean:      round3(o.eval.OldMean),
			Current:      round3(o.eval.Current),
			ZScore:       round3(o.eval.ZScore),
			Suspicious:   o.eval.Suspicious,
		}
		if row.Suspicious {
			report.Suspicious = append(report.Suspicious, row)
		} else {
			report.Unsuspicious = append(report.Unsuspicious, row)
		}
	}
	sortRows(report.Suspicious)
	sortRows(report.Unsuspicious)
	sort.Slice(report.Skipped, func(i, j int) bool { return report.Skipped[i].Source < report.Skipped[j].Source })

	c.log.Info("psr check done", "suspicious", len(report.Suspicious), "unsuspicious", len(report.Unsuspicious), "skipped", len(report.Skipped))
	return report, nil
}

// compute loads and scores every source concurrently. Per-source failures are returned
// in the outcome; only a cancelled context fails the run.
func (c *PSRChecker) compute(ctx context.Context, sources []string, window Window, res stats.Resolution, evaluate bool) ([]psrOutcome, error) {
	group := c.pool.NewGroupContext(ctx)
	for _, source := range sources {
		group.SubmitErr(func() (psrOutcome, error) {
			out := psrOutcome{source: source}
			samples, err := c.cfg.Provider.MainSignals(ctx, source, window.From, window.To)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				out.err = err
				return out, nil
			}
			out.result, out.err = stats.ComputePSR(source, samples, stats.PSRConfig{
				Resolution:               res,
				AllowHigherSamplingRates: c.cfg.AllowHigherSamplingRates,
			})
			if out.err != nil || !evaluate {
				return out, nil
			}
			out.eval, out.err = stats.EvaluatePSR(out.result, c.cfg.Anomaly)
			return out, nil
		})
	}
	outcomes, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to compute psr: %w", err)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].source < outcomes[j].source })
	return outcomes, nil
}

// sortRows orders by last recorded period, then current PSR, both descending.
func sortRows(rows []PSRRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].LastRecorded != rows[j].LastRecorded {
			return rows[i].LastRecorded > rows[j].LastRecorded
		}
		if rows[i].Current != rows[j].Current {
			return rows[i].Current > rows[j].Current
		}
		return rows[i].Source < rows[j].Source
	})
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
