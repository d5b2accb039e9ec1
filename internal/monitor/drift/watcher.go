package drift

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/influx"
	"github.com/eawag-uwo/sensorhealth/internal/report"
)

const (
	watcherName = "drift"
)

type DriftWatcher struct {
	log *slog.Logger
	cfg *Config

	drifting map[string]struct{}
}

func NewDriftWatcher(cfg *Config) (*DriftWatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DriftWatcher{
		log:      cfg.Logger.With("watcher", watcherName),
		cfg:      cfg,
		drifting: make(map[string]struct{}),
	}, nil
}

func (w *DriftWatcher) Name() string {
	return watcherName
}

func (w *DriftWatcher) Run(ctx context.Context) error {
	ticker := w.cfg.Clock.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	if err := w.Tick(ctx); err != nil {
		w.log.Error("failed to tick", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("context done, stopping")
			return nil
		case <-ticker.Chan():
			if err := w.Tick(ctx); err != nil {
				w.log.Error("failed to tick", "error", err)
			}
		}
	}
}

func (w *DriftWatcher) Tick(ctx context.Context) error {
	w.log.Debug("ticking drift")
	runAt := w.cfg.Clock.Now()

	results, err := w.cfg.Checker.Check(ctx, w.cfg.Pairs)
	if err != nil {
		w.cfg.Metrics.Errors.WithLabelValues(MetricErrorTypeRunCheck).Inc()
		return fmt.Errorf("failed to run drift check: %w", err)
	}

	m := w.cfg.Metrics
	m.Statistic.Reset()
	m.PValue.Reset()
	m.Drifting.Reset()
	for _, r := range results {
		if r.Error != "" {
			m.Errors.WithLabelValues(MetricErrorTypeEvaluatePair).Inc()
			continue
		}
		m.Statistic.WithLabelValues(r.Source, r.SimilarTo).Set(r.Statistic)
		m.PValue.WithLabelValues(r.Source, r.SimilarTo).Set(r.PValue)
		var drifting float64
		if r.Drifting {
			drifting = 1
		}
		m.Drifting.WithLabelValues(r.Source, r.SimilarTo).Set(drifting)

		if w.cfg.InfluxWriter != nil {
			w.cfg.InfluxWriter.WritePoint(influx.DriftPoint(w.cfg.Env, runAt, r))
		}
	}
	if w.cfg.InfluxWriter != nil {
		w.cfg.InfluxWriter.Flush()
	}

	if w.cfg.History != nil {
		if err := w.cfg.History.WriteDrift(ctx, runAt, results); err != nil {
			m.Errors.WithLabelValues(MetricErrorTypeWriteHistory).Inc()
			w.log.Error("failed to write drift history", "error", err)
		}
	}

	if w.cfg.OutDir != "" {
		w.writeWorkbook(results, runAt)
	}

	w.notify(ctx, results)
	return nil
}

func (w *DriftWatcher) writeWorkbook(results []health.DriftResult, runAt time.Time) {
	path := filepath.Join(w.cfg.OutDir, "Drift_Report_"+runAt.Format("2006-01-02")+".xlsx")
	err := os.MkdirAll(w.cfg.OutDir, 0o755)
	if err == nil {
		err = report.WriteDriftWorkbook(path, results, runAt)
	}
	if err != nil {
		w.cfg.Metrics.Errors.WithLabelValues(MetricErrorTypeWriteWorkbook).Inc()
		w.log.Error("failed to write drift workbook", "path", path, "error", err)
		return
	}
	w.log.Info("wrote drift workbook", "path", path)
}

func (w *DriftWatcher) notify(ctx context.Context, results []health.DriftResult) {
	current := make(map[string]struct{})
	rows := [][]string{{"source", "similar to", "D", "p-value"}}
	for _, r := range results {
		if !r.Drifting {
			continue
		}
		current[r.Source] = struct{}{}
		if _, ok := w.drifting[r.Source]; ok {
			continue
		}
		rows = append(rows, []string{
			r.Source,
			r.SimilarTo,
			strconv.FormatFloat(r.Statistic, 'f', 3, 64),
			strconv.FormatFloat(r.PValue, 'g', 3, 64),
		})
	}

	if len(rows) > 1 && w.cfg.Notifier != nil {
		header := fmt.Sprintf("%d sensors drifting from their reference (%s)", len(rows)-1, w.cfg.Env)
		if err := w.cfg.Notifier.Notify(ctx, header, rows); err != nil {
			w.cfg.Metrics.Errors.WithLabelValues(MetricErrorTypeNotify).Inc()
			w.log.Error("failed to notify", "error", err)
			return
		}
	}
	w.drifting = current
}
