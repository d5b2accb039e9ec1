package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DriftPair names the reference sensor a source is compared against.
type DriftPair struct {
	Source        string `yaml:"-"`
	SimilarTo     string `yaml:"similar_to"`
	MainParameter string `yaml:"main_parameter"`
}

type DriftConfig struct {
	Sensors      map[string]DriftPair `yaml:"sensors"`
	Alpha        float64              `yaml:"alpha"`
	MinStatistic float64              `yaml:"min_statistic"`
	Window       int                  `yaml:"window"`
}

// Pairs returns the configured pairs ordered by source name.
func (c *DriftConfig) Pairs() []DriftPair {
	pairs := make([]DriftPair, 0, len(c.Sensors))
	for source, p := range c.Sensors {
		p.Source = source
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Source < pairs[j].Source })
	return pairs
}

func (c *DriftConfig) Validate() error {
	if len(c.Sensors) == 0 {
		return errors.New("at least one sensor is required")
	}
	for source, p := range c.Sensors {
		if p.SimilarTo == "" {
			return fmt.Errorf("sensor %s: similar_to is required", source)
		}
		if p.MainParameter == "" {
			return fmt.Errorf("sensor %s: main_parameter is required", source)
		}
	}
	return nil
}

type DuplicateCandidate struct {
	Source   string `yaml:"source"`
	Variable string `yaml:"variable"`
}

type DuplicatesConfig struct {
	Candidates []DuplicateCandidate `yaml:"candidates"`
}

func (c *DuplicatesConfig) Validate() error {
	if len(c.Candidates) == 0 {
		return errors.New("at least one candidate is required")
	}
	for i, cand := range c.Candidates {
		if cand.Source == "" || cand.Variable == "" {
			return fmt.Errorf("candidate %d: source and variable are required", i)
		}
	}
	return nil
}

// SliceConfig describes the yearly SQLite exports and the sources checked in them.
type SliceConfig struct {
	Files         map[int]string `yaml:"files"`
	ContentList   string         `yaml:"content_list"`
	Overview      string         `yaml:"overview"`
	RainSources   []string       `yaml:"rain_sources"`
	FlowSources   []string       `yaml:"flow_sources"`
	FlowReference string         `yaml:"flow_reference"`
}

func (c *SliceConfig) Validate() error {
	if len(c.Files) == 0 {
		return errors.New("at least one slice file is required")
	}
	if len(c.FlowSources) > 0 && c.FlowReference == "" {
		return errors.New("flow reference is required when flow sources are set")
	}
	return nil
}

func LoadDriftConfig(path string) (*DriftConfig, error) {
	var cfg DriftConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid drift config %s: %w", path, err)
	}
	return &cfg, nil
}

func LoadDuplicatesConfig(path string) (*DuplicatesConfig, error) {
	var cfg DuplicatesConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid duplicates config %s: %w", path, err)
	}
	return &cfg, nil
}

func LoadSliceConfig(path string) (*SliceConfig, error) {
	var cfg SliceConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid slice config %s: %w", path, err)
	}
	return &cfg, nil
}

func loadYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}
