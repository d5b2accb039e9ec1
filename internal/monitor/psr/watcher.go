package psr

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
	watcherName = "psr"
)

type PSRWatcher struct {
	log *slog.Logger
	cfg *Config

	// suspicious holds the sources flagged by the previous tick.
	suspicious map[string]struct{}
}

func NewPSRWatcher(cfg *Config) (*PSRWatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PSRWatcher{
		log:        cfg.Logger.With("watcher", watcherName),
		cfg:        cfg,
		suspicious: make(map[string]struct{}),
	}, nil
}

func (w *PSRWatcher) Name() string {
	return watcherName
}

func (w *PSRWatcher) Run(ctx context.Context) error {
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

// Tick runs one PSR check and fans the report out to every configured sink. Sink
// failures are counted and logged; only a failed check is returned.
func (w *PSRWatcher) Tick(ctx context.Context) error {
	w.log.Debug("ticking psr")
	runAt := w.cfg.Clock.Now()

	r, err := w.cfg.Checker.Run(ctx)
	if err != nil {
		w.cfg.Metrics.Errors.WithLabelValues(MetricErrorTypeRunCheck).Inc()
		return fmt.Errorf("failed to run psr check: %w", err)
	}

	w.updateMetrics(r)
	w.exportToInflux(r, runAt)

	if w.cfg.History != nil {
		if err := w.cfg.History.WritePSR(ctx, runAt, r); err != nil {
			w.cfg.Metrics.Errors.WithLabelValues(MetricErrorTypeWriteHistory).Inc()
			w.log.Error("failed to write psr history", "error", err)
		}
	}

	if w.cfg.OutDir != "" {
		w.writeWorkbook(ctx, r, runAt)
	}

	w.notify(ctx, r)
	return nil
}

func (w *PSRWatcher) updateMetrics(r *health.PSRReport) {
	m := w.cfg.Metrics
	m.Current.Reset()
	m.ZScore.Reset()
	m.Suspicious.Reset()
	set := func(rows []health.PSRRow, suspicious float64) {
		for _, row := range rows {
			m.Current.WithLabelValues(row.Source).Set(row.Current)
			m.ZScore.WithLabelValues(row.Source).Set(row.ZScore)
			m.Suspicious.WithLabelValues(row.Source).Set(suspicious)
		}
	}
	set(r.Suspicious, 1)
	set(r.Unsuspicious, 0)
	m.Skipped.Set(float64(len(r.Skipped)))
}

func (w *PSRWatcher) exportToInflux(r *health.PSRReport, runAt time.Time) {
	if w.cfg.InfluxWriter == nil {
		return
	}
	for _, rows := range [][]health.PSRRow{r.Suspicious, r.Unsuspicious} {
		for _, row := range rows {
			w.cfg.InfluxWriter.WritePoint(influx.PSRPoint(w.cfg.Env, runAt, row))
		}
	}
	w.cfg.InfluxWriter.Flush()
}

func (w *PSRWatcher) writeWorkbook(ctx context.Context, r *health.PSRReport, runAt time.Time) {
	if err := os.MkdirAll(w.cfg.OutDir, 0o755); err != nil {
		w.cfg.Metrics.Errors.WithLabelValues(MetricErrorTypeWriteWorkbook).Inc()
		w.log.Error("failed to create output directory", "dir", w.cfg.OutDir, "error", err)
		return
	}
	title := report.PSRTitle(runAt)
	path := filepath.Join(w.cfg.OutDir, title+".xlsx")
	if err := report.WritePSRWorkbook(path, r, title); err != nil {
		w.cfg.Metrics.Errors.WithLabelValues(MetricErrorTypeWriteWorkbook).Inc()
		w.log.Error("failed to write psr workbook", "path", path, "error", err)
		return
	}
	w.log.Info("wrote psr workbook", "path", path)

	if w.cfg.Archiver == nil {
		return
	}
	url, err := w.cfg.Archiver.Upload(ctx, path, w.cfg.Archiver.Key(path))
	if err != nil {
		w.cfg.Metrics.Errors.WithLabelValues(MetricErrorTypeArchive).Inc()
		w.log.Error("failed to archive psr workbook", "path", path, "error", err)
		return
	}
	w.log.Info("archived psr workbook", "url", url)
}

// notify posts the sensors that turned suspicious since the previous tick.
func (w *PSRWatcher) notify(ctx context.Context, r *health.PSRReport) {
	current := make(map[string]struct{}, len(r.Suspicious))
	rows := [][]string{{"source", "last recorded", "PSR", "history mean", "z-score"}}
	for _, row := range r.Suspicious {
		current[row.Source] = struct{}{}
		if _, ok := w.suspicious[row.Source]; ok {
			continue
		}
		rows = append(rows, []string{
			row.Source,
			row.LastRecorded,
			strconv.FormatFloat(row.Current, 'f', 3, 64),
			strconv.FormatFloat(row.OldMean, 'f', 3, 64),
			strconv.FormatFloat(row.ZScore, 'f', 3, 64),
		})
	}
	for source := range w.suspicious {
		if _, ok := current[source]; !ok {
			w.log.Info("sensor recovered", "source", source)
		}
	}

	if len(rows) > 1 && w.cfg.Notifier != nil {
		header := fmt.Sprintf("%d newly suspicious sensors (%s)", len(rows)-1, w.cfg.Env)
		if err := w.cfg.Notifier.Notify(ctx, header, rows); err != nil {
			w.cfg.Metrics.Errors.WithLabelValues(MetricErrorTypeNotify).Inc()
			w.log.Error("failed to notify", "error", err)
			// Keep the previous set so the alert is retried on the next tick.
			return
		}
	}
	w.suspicious = current
}
