package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultAlpha        = 0.05
	DefaultMinStatistic = 0.2
)

type DriftCheckerConfig struct {
	Logger   *slog.Logger
	Provider SignalProvider
	Clock    clockwork.Clock
	Location *time.Location

	HistoryWeeks int
	// A pair drifts when the KS p-value is below Alpha and the statistic reaches MinStatistic.
	Alpha        float64
	MinStatistic float64
	// Window is the rolling mean window in hours.
	Window   int
	PoolSize int
}

func (c *DriftCheckerConfig) Validate() error {
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
	if c.HistoryWeeks < 2 {
		return errors.New("history must span at least two weeks")
	}
	if c.Alpha == 0 {
		c.Alpha = DefaultAlpha
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return errors.New("alpha must be between 0 and 1")
	}
	if c.MinStatistic == 0 {
		c.MinStatistic = DefaultMinStatistic
	}
	if c.Window == 0 {
		c.Window = stats.DefaultRollingWindow
	}
	if c.PoolSize == 0 {
		c.PoolSize = defaultPoolSize
	}
	return nil
}

// DriftResult compares the last week's difference between a sensor and its reference
// against the difference over the history window.
type DriftResult struct {
	Source    string  `json:"source"`
	SimilarTo string  `json:"similar_to"`
	Parameter string  `json:"parameter"`
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	CurrentN  int     `json:"current_n"`
	HistoricN int     `json:"historic_n"`
	Drifting  bool    `json:"drifting"`
	Error     string  `json:"error,omitempty"`
}

type DriftChecker struct {
	cfg  *DriftCheckerConfig
	log  *slog.Logger
	pool pond.ResultPool[DriftResult]
}

func NewDriftChecker(cfg *DriftCheckerConfig) (*DriftChecker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DriftChecker{
		cfg:  cfg,
		log:  cfg.Logger,
		pool: pond.NewResultPool[DriftResult](cfg.PoolSize),
	}, nil
}

// Check runs every pair. Pairs that cannot be evaluated carry the error in their result.
func (c *DriftChecker) Check(ctx context.Context, pairs []config.DriftPair) ([]DriftResult, error) {
	current, historic := DriftWindows(c.cfg.Clock.Now(), c.cfg.Location, c.cfg.HistoryWeeks)
	c.log.Info("running drift check", "pairs", len(pairs), "current_from", current.From, "historic_from", historic.From)

	group := c.pool.NewGroupContext(ctx)
	for _, pair := range pairs {
		group.SubmitErr(func() (DriftResult, error) {
			res, err := c.checkPair(ctx, pair, current, historic)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				c.log.Warn("drift check failed", "source", pair.Source, "similar_to", pair.SimilarTo, "error", err)
				res.Error = err.Error()
			}
			return res, nil
		})
	}
	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to check drift: %w", err)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Source < results[j].Source })
	return results, nil
}

func (c *DriftChecker) checkPair(ctx context.Context, pair config.DriftPair, current, historic Window) (DriftResult, error) {
	res := DriftResult{Source: pair.Source, SimilarTo: pair.SimilarTo, Parameter: pair.MainParameter}

	load := func(source string, w Window) ([]stats.Sample, error) {
		return c.cfg.Provider.Signals(ctx, datapool.SignalQuery{
			Source:   source,
			Variable: pair.MainParameter,
			From:     w.From,
			To:       w.To,
		})
	}
	xCur, err := load(pair.Source, current)
	if err != nil {
		return res, err
	}
	yCur, err := load(pair.SimilarTo, current)
	if err != nil {
		return res, err
	}
	xHist, err := load(pair.Source, historic)
	if err != nil {
		return res, err
	}
	yHist, err := load(pair.SimilarTo, historic)
	if err != nil {
		return res, err
	}

	curRel := relDiffs(stats.SignalDiff(xCur, yCur, c.cfg.Window))
	histRel := relDiffs(stats.SignalDiff(xHist, yHist, c.cfg.Window))

	ks, err := stats.KSTest(curRel, histRel)
	if err != nil {
		return res, fmt.Errorf("not enough overlapping data: %w", err)
	}
	res.Statistic = ks.Statistic
	res.PValue = ks.PValue
	res.CurrentN = ks.N
	res.HistoricN = ks.M
	res.Drifting = ks.PValue < c.cfg.Alpha && ks.Statistic >= c.cfg.MinStatistic
	return res, nil
}

func relDiffs(diffs []stats.Diff) []float64 {
	out := make([]float64, len(diffs))
	for i, d := range diffs {
		out[i] = d.Rel
	}
	return out
}
