package datapool

import "time"

const (
	sourcesCacheKey = "sources"
)

func (p *provider) getCachedSources() []Source {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()
	cached := p.cache.Get(sourcesCacheKey)
	if cached == nil {
		return nil
	}
	return cached.Value().([]Source)
}

func (p *provider) setCachedSources(sources []Source) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	p.cache.Set(sourcesCacheKey, sources, p.cfg.SourcesCacheTTL)
}

func (p *provider) getCachedMainParameter(key string) (Variable, bool) {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()
	cached := p.cache.Get(key)
	if cached == nil {
		return Variable{}, false
	}
	return cached.Value().(Variable), true
}

func (p *provider) setCachedMainParameter(key string, v Variable) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	p.cache.Set(key, v, p.cfg.MainParameterCacheTTL)
}

func mainParameterCacheKey(source string, from, to time.Time) string {
	if from.IsZero() && to.IsZero() {
		return "main:" + source
	}
	return "main:" + source + ":" + from.Format(time.RFC3339) + ":" + to.Format(time.RFC3339)
}
