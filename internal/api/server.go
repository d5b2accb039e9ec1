package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	defaultReportCacheTTL = 15 * time.Minute
	defaultMaxWeeks       = 104
	shutdownTimeout       = 5 * time.Second
)

// Provider is the part of the datapool provider the API serves from.
type Provider interface {
	health.SignalProvider
	MainParameter(ctx context.Context, source string) (datapool.Variable, error)
}

type ServerConfig struct {
	Logger   *slog.Logger
	Provider Provider
	Clock    clockwork.Clock
	Location *time.Location

	Anomaly        stats.AnomalyConfig
	ReportCacheTTL time.Duration
	MaxWeeks       int
}

func (c *ServerConfig) Validate() error {
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
	if err := c.Anomaly.Validate(); err != nil {
		return err
	}
	if c.ReportCacheTTL == 0 {
		c.ReportCacheTTL = defaultReportCacheTTL
	}
	if c.MaxWeeks == 0 {
		c.MaxWeeks = defaultMaxWeeks
	}
	return nil
}

type Server struct {
	log *slog.Logger
	cfg *ServerConfig
	Mux *http.ServeMux

	reports *ttlcache.Cache[int, *health.PSRReport]
	group   singleflight.Group
}

func NewServer(cfg *ServerConfig) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		Mux: http.NewServeMux(),
		reports: ttlcache.New(
			ttlcache.WithTTL[int, *health.PSRReport](cfg.ReportCacheTTL),
			ttlcache.WithDisableTouchOnHit[int, *health.PSRReport](),
		),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.Mux.HandleFunc("GET /sources", s.handleSources)
	s.Mux.HandleFunc("GET /psr", s.handlePSR)
	s.Mux.HandleFunc("GET /psr/report", s.handlePSRReport)
	s.Mux.HandleFunc("GET /signals", s.handleSignals)
	s.Mux.HandleFunc("GET /summary", s.handleSummary)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go s.reports.Start()
	defer s.reports.Stop()

	srv := &http.Server{
		Handler:           s.Mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("server shutdown error", "error", err)
		} else {
			s.log.Info("server shutdown via context")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			s.log.Info("server closed")
			return nil
		}
		return err
	}
}

// report returns the PSR report over the given number of weeks, computing it at most once
// per cache period.
func (s *Server) report(ctx context.Context, weeks int) (*health.PSRReport, error) {
	if item := s.reports.Get(weeks); item != nil {
		return item.Value(), nil
	}
	v, err, _ := s.group.Do(fmt.Sprint(weeks), func() (any, error) {
		checker, err := health.NewPSRChecker(&health.PSRCheckerConfig{
			Logger:       s.log,
			Provider:     s.cfg.Provider,
			Clock:        s.cfg.Clock,
			Location:     s.cfg.Location,
			HistoryWeeks: weeks,
			Anomaly:      s.cfg.Anomaly,
		})
		if err != nil {
			return nil, err
		}
		report, err := checker.Run(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.reports.Set(weeks, report, ttlcache.DefaultTTL)
		return report, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*health.PSRReport), nil
}
