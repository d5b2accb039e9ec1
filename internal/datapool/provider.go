package datapool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/jellydator/ttlcache/v3"
)

const (
	defaultSourcesCacheTTL       = 5 * time.Minute
	defaultMainParameterCacheTTL = time.Hour

	defaultGetSignalsPoolSize = 8
)

var ErrNoMainParameter = errors.New("source has no main measurement parameter")

// Store is the query surface of the datapool database.
type Store interface {
	Sources(ctx context.Context) ([]Source, error)
	Variables(ctx context.Context) ([]Variable, error)
	MainParameters(ctx context.Context, source string, from, to time.Time) ([]Variable, error)
	Records(ctx context.Context, q SignalQuery) ([]Record, error)
	GroupSignals(ctx context.Context, q GroupQuery) ([]Record, error)
	WeeklyCounts(ctx context.Context, from, to time.Time) ([]WeeklyCount, error)
	SourceVariables(ctx context.Context) (map[string][]string, error)
	SourceTypes(ctx context.Context) ([]SourceType, error)
	Duplicates(ctx context.Context, source, variable string) ([]Duplicate, error)
}

type Provider interface {
	Store
	MainParameter(ctx context.Context, source string) (Variable, error)
	Signals(ctx context.Context, q SignalQuery) ([]stats.Sample, error)
	MainSignals(ctx context.Context, source string, from, to time.Time) ([]stats.Sample, error)
	MainSignalsForSources(ctx context.Context, sources []string, from, to time.Time) (map[string][]stats.Sample, error)
}

type ProviderConfig struct {
	Logger *slog.Logger
	Store  Store

	SourcesCacheTTL       time.Duration
	MainParameterCacheTTL time.Duration
	GetSignalsPoolSize    int
}

func (c *ProviderConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.SourcesCacheTTL == 0 {
		c.SourcesCacheTTL = defaultSourcesCacheTTL
	}
	if c.MainParameterCacheTTL == 0 {
		c.MainParameterCacheTTL = defaultMainParameterCacheTTL
	}
	if c.GetSignalsPoolSize == 0 {
		c.GetSignalsPoolSize = defaultGetSignalsPoolSize
	}
	return nil
}

type provider struct {
	Store

	cfg *ProviderConfig
	log *slog.Logger

	cache   *ttlcache.Cache[string, any]
	cacheMu sync.RWMutex

	getSignalsPool pond.ResultPool[sourceSignals]
}

type sourceSignals struct {
	source  string
	samples []stats.Sample
}

func NewProvider(cfg *ProviderConfig) (*provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, any](cfg.SourcesCacheTTL),
	)

	return &provider{
		Store: cfg.Store,
		cfg:   cfg,
		log:   cfg.Logger,
		cache: cache,

		getSignalsPool: pond.NewResultPool[sourceSignals](cfg.GetSignalsPoolSize),
	}, nil
}

func (p *provider) Sources(ctx context.Context) ([]Source, error) {
	if cached := p.getCachedSources(); cached != nil {
		return cached, nil
	}
	sources, err := p.Store.Sources(ctx)
	if err != nil {
		return nil, err
	}
	p.setCachedSources(sources)
	return sources, nil
}

// MainParameter resolves the single main measurement parameter of a source. When a
// source has several, the first by id wins.
func (p *provider) MainParameter(ctx context.Context, source string) (Variable, error) {
	return p.mainParameter(ctx, source, time.Time{}, time.Time{})
}

func (p *provider) mainParameter(ctx context.Context, source string, from, to time.Time) (Variable, error) {
	key := mainParameterCacheKey(source, from, to)
	if cached, ok := p.getCachedMainParameter(key); ok {
		return cached, nil
	}
	vars, err := p.Store.MainParameters(ctx, source, from, to)
	if err != nil {
		return Variable{}, err
	}
	if len(vars) == 0 {
		return Variable{}, fmt.Errorf("%w: %s", ErrNoMainParameter, source)
	}
	if len(vars) > 1 {
		p.log.Warn("source has multiple main parameters, using the first", "source", source, "variable", vars[0].Name, "count", len(vars))
	}
	p.setCachedMainParameter(key, vars[0])
	return vars[0], nil
}

func (p *provider) Signals(ctx context.Context, q SignalQuery) ([]stats.Sample, error) {
	records, err := p.Store.Records(ctx, q)
	if err != nil {
		return nil, err
	}
	samples := make([]stats.Sample, len(records))
	for i, r := range records {
		samples[i] = stats.Sample{Timestamp: r.Timestamp, Value: r.Value}
	}
	return samples, nil
}

// MainSignals loads the main parameter series of a source. The main parameter is picked
// among the variables recorded inside the window.
func (p *provider) MainSignals(ctx context.Context, source string, from, to time.Time) ([]stats.Sample, error) {
	param, err := p.mainParameter(ctx, source, from, to)
	if err != nil {
		return nil, err
	}
	return p.Signals(ctx, SignalQuery{Source: source, Variable: param.Name, From: from, To: to})
}

// MainSignalsForSources loads the main parameter series of every source concurrently.
// Sources without a main parameter are left out of the result.
func (p *provider) MainSignalsForSources(ctx context.Context, sources []string, from, to time.Time) (map[string][]stats.Sample, error) {
	group := p.getSignalsPool.NewGroupContext(ctx)

	for _, source := range sources {
		group.SubmitErr(func() (sourceSignals, error) {
			samples, err := p.MainSignals(ctx, source, from, to)
			if errors.Is(err, ErrNoMainParameter) {
				p.log.Info("source has no main parameter, skipping", "source", source)
				return sourceSignals{source: source}, nil
			}
			if err != nil {
				return sourceSignals{}, err
			}
			return sourceSignals{source: source, samples: samples}, nil
		})
	}

	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to get main signals: %w", err)
	}

	out := make(map[string][]stats.Sample, len(results))
	for _, result := range results {
		if result.samples == nil {
			continue
		}
		out[result.source] = result.samples
	}
	return out, nil
}
