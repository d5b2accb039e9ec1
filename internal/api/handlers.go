package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
)

var timeLayouts = []string{time.DateOnly, time.DateTime, "2006-01-02T15:04:05", time.RFC3339}

// Timestamps are datapool wall clock, so an offset in the query is dropped rather than
// converted.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// parseRange reads from and to, falling back to the PSR window ending yesterday.
func (s *Server) parseRange(r *http.Request) (time.Time, time.Time, error) {
	def := health.PSRWindow(s.cfg.Clock.Now(), s.cfg.Location, health.DefaultHistoryWeeks)
	from, to := def.From, def.To
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = parseTime(v); err != nil {
			return from, to, err
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = parseTime(v); err != nil {
			return from, to, err
		}
	}
	if from.After(to) {
		return from, to, errors.New("from is after to")
	}
	return from, to, nil
}

func parseMultiParam(r *http.Request, name string) []string {
	params := []string{}
	for _, raw := range r.URL.Query()[name] {
		for _, value := range strings.Split(strings.Trim(raw, "{}"), ",") {
			if value = strings.TrimSpace(value); value != "" {
				params = append(params, value)
			}
		}
	}
	return params
}

func (s *Server) encode(w http.ResponseWriter, r *http.Request, what string, v any) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	if fields := parseMultiParam(r, "fields"); len(fields) > 0 {
		err = newFieldEncoder(w, fields).Encode(v)
	} else {
		err = json.NewEncoder(w).Encode(v)
	}
	if err != nil {
		s.log.Error("failed to encode "+what, "error", err)
		http.Error(w, fmt.Sprintf("failed to encode %s: %v", what, err), http.StatusInternalServerError)
	}
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("[/sources]", "full", r.URL.String())

	sources, err := s.cfg.Provider.Sources(r.Context())
	if err != nil {
		s.log.Error("failed to get sources", "error", err)
		http.Error(w, fmt.Sprintf("failed to get sources: %v", err), http.StatusInternalServerError)
		return
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	s.encode(w, r, "sources", sources)
}

// Non-finite ratios are reported as null.
type psrPeriod struct {
	Timestamp       time.Time `json:"timestamp"`
	Count           int       `json:"count"`
	DayDifference   float64   `json:"day_difference"`
	NormalizedCount *float64  `json:"normalized_count"`
}

type psrResponse struct {
	Source          string               `json:"source"`
	IntervalMinutes int                  `json:"interval_minutes"`
	Resolution      stats.Resolution     `json:"resolution"`
	From            time.Time            `json:"from"`
	To              time.Time            `json:"to"`
	Periods         []psrPeriod          `json:"periods"`
	Evaluation      *stats.PSREvaluation `json:"evaluation,omitempty"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (s *Server) handlePSR(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := q.Get("source")
	resStr := q.Get("resolution")
	s.log.Debug("[/psr]", "source", source, "resolution", resStr, "full", r.URL.String())

	if source == "" {
		http.Error(w, "source is required", http.StatusBadRequest)
		return
	}
	if resStr == "" {
		resStr = string(stats.ResolutionWeek)
	}
	res, err := stats.ParseResolution(resStr)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid resolution %q", resStr), http.StatusBadRequest)
		return
	}
	allowHigher, _ := strconv.ParseBool(q.Get("allow_higher_sampling_rates"))
	from, to, err := s.parseRange(r)
	if err != nil {
		s.log.Warn("invalid from/to", "from", q.Get("from"), "to", q.Get("to"))
		http.Error(w, fmt.Sprintf("invalid from/to: %v", err), http.StatusBadRequest)
		return
	}

	samples, err := s.cfg.Provider.MainSignals(r.Context(), source, from, to)
	if errors.Is(err, datapool.ErrNoMainParameter) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("failed to get signals", "source", source, "error", err)
		http.Error(w, fmt.Sprintf("failed to get signals: %v", err), http.StatusInternalServerError)
		return
	}
	result, err := stats.ComputePSR(source, samples, stats.PSRConfig{Resolution: res, AllowHigherSamplingRates: allowHigher})
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to compute psr: %v", err), http.StatusUnprocessableEntity)
		return
	}

	out := psrResponse{
		Source:          source,
		IntervalMinutes: result.IntervalMinutes,
		Resolution:      result.Resolution,
		From:            from,
		To:              to,
		Periods:         make([]psrPeriod, 0, len(result.Periods)),
	}
	for _, p := range result.Periods {
		out.Periods = append(out.Periods, psrPeriod{
			Timestamp:       p.Timestamp,
			Count:           p.Count,
			DayDifference:   p.DayDifference,
			NormalizedCount: finite(p.NormalizedCount),
		})
	}
	if eval, err := stats.EvaluatePSR(result, s.cfg.Anomaly); err == nil && isFiniteEval(eval) {
		out.Evaluation = eval
	} else if err != nil {
		s.log.Debug("psr not evaluated", "source", source, "error", err)
	}
	s.encode(w, r, "psr", out)
}

func isFiniteEval(e *stats.PSREvaluation) bool {
	return finite(e.Current) != nil && finite(e.OldMean) != nil && finite(e.ZScore) != nil
}

func (s *Server) handlePSRReport(w http.ResponseWriter, r *http.Request) {
	weeksStr := r.URL.Query().Get("weeks")
	s.log.Debug("[/psr/report]", "weeks", weeksStr, "full", r.URL.String())

	weeks := health.DefaultHistoryWeeks
	if weeksStr != "" {
		n, err := strconv.Atoi(weeksStr)
		if err != nil || n < 1 || n > s.cfg.MaxWeeks {
			s.log.Warn("invalid weeks", "weeks", weeksStr)
			http.Error(w, fmt.Sprintf("invalid weeks (must be 1 to %d)", s.cfg.MaxWeeks), http.StatusBadRequest)
			return
		}
		weeks = n
	}

	report, err := s.report(r.Context(), weeks)
	if err != nil {
		s.log.Error("failed to run psr report", "weeks", weeks, "error", err)
		http.Error(w, fmt.Sprintf("failed to run psr report: %v", err), http.StatusInternalServerError)
		return
	}
	s.encode(w, r, "psr report", report)
}

// Missing values are reported as null.
type signalPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
}

// signalQuery reads source, variable and the time range. Without a variable the main
// parameter of the source is used.
func (s *Server) signalQuery(w http.ResponseWriter, r *http.Request) (datapool.SignalQuery, bool) {
	q := datapool.SignalQuery{
		Source:   r.URL.Query().Get("source"),
		Variable: r.URL.Query().Get("variable"),
	}
	if q.Source == "" {
		http.Error(w, "source is required", http.StatusBadRequest)
		return q, false
	}
	var err error
	q.From, q.To, err = s.parseRange(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid from/to: %v", err), http.StatusBadRequest)
		return q, false
	}
	if q.Variable == "" {
		v, err := s.cfg.Provider.MainParameter(r.Context(), q.Source)
		if errors.Is(err, datapool.ErrNoMainParameter) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return q, false
		}
		if err != nil {
			s.log.Error("failed to get main parameter", "source", q.Source, "error", err)
			http.Error(w, fmt.Sprintf("failed to get main parameter: %v", err), http.StatusInternalServerError)
			return q, false
		}
		q.Variable = v.Name
	}
	return q, true
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("[/signals]", "full", r.URL.String())

	q, ok := s.signalQuery(w, r)
	if !ok {
		return
	}
	samples, err := s.cfg.Provider.Signals(r.Context(), q)
	if err != nil {
		s.log.Error("failed to get signals", "source", q.Source, "variable", q.Variable, "error", err)
		http.Error(w, fmt.Sprintf("failed to get signals: %v", err), http.StatusInternalServerError)
		return
	}
	out := make([]signalPoint, len(samples))
	for i, smp := range samples {
		out[i] = signalPoint{Timestamp: smp.Timestamp, Value: finite(smp.Value)}
	}
	s.encode(w, r, "signals", out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("[/summary]", "full", r.URL.String())

	maxPoints := 1
	if v := r.URL.Query().Get("max_points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid max_points", http.StatusBadRequest)
			return
		}
		maxPoints = n
	}
	q, ok := s.signalQuery(w, r)
	if !ok {
		return
	}
	samples, err := s.cfg.Provider.Signals(r.Context(), q)
	if err != nil {
		s.log.Error("failed to get signals", "source", q.Source, "variable", q.Variable, "error", err)
		http.Error(w, fmt.Sprintf("failed to get signals: %v", err), http.StatusInternalServerError)
		return
	}
	s.encode(w, r, "summary", stats.Aggregate(q.Source, samples, maxPoints, stats.DefaultDropBelow))
}
