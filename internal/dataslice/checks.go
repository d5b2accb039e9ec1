package dataslice

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
)

const (
	RainVariable = "rainfall_intensity"
	FlowVariable = "flow_rate"

	// Plausible yearly rain height in mm.
	MinYearlyRain = 1000.0
	MaxYearlyRain = 2000.0
)

type FindingKind string

const (
	FindingSourceMissing   FindingKind = "source_missing"
	FindingVariableMissing FindingKind = "variable_missing"
	FindingVariableCount   FindingKind = "variable_count"
	FindingRainSum         FindingKind = "rain_sum"
	FindingFlowVolume      FindingKind = "flow_volume"
)

// Finding is the outcome of one consistency check for one slice.
type Finding struct {
	Year     int         `json:"year"`
	Kind     FindingKind `json:"kind"`
	Source   string      `json:"source"`
	Variable string      `json:"variable,omitempty"`
	OK       bool        `json:"ok"`
	Value    float64     `json:"value"`
	Message  string      `json:"message"`
}

func (s *Set) record(findings []Finding, f Finding) []Finding {
	if f.OK {
		s.log.Info(f.Message, "year", f.Year, "source", f.Source)
	} else {
		s.log.Warn(f.Message, "year", f.Year, "source", f.Source)
	}
	return append(findings, f)
}

// CheckSourcesAvailable reports, per slice, the expected sources the slice lacks.
func (s *Set) CheckSourcesAvailable(ctx context.Context, sources []string) ([]Finding, error) {
	var findings []Finding
	for _, sl := range s.slices {
		names, err := sl.SourceNames(ctx)
		if err != nil {
			return nil, err
		}
		present := make(map[string]struct{}, len(names))
		for _, n := range names {
			present[n] = struct{}{}
		}
		var missing []string
		for _, src := range sources {
			if _, ok := present[src]; !ok {
				missing = append(missing, src)
			}
		}
		sort.Strings(missing)
		if len(missing) == 0 {
			findings = s.record(findings, Finding{
				Year:    sl.Year,
				Kind:    FindingSourceMissing,
				OK:      true,
				Message: fmt.Sprintf("all %d sources are in data slice %d", len(sources), sl.Year),
			})
			continue
		}
		for _, src := range missing {
			findings = s.record(findings, Finding{
				Year:    sl.Year,
				Kind:    FindingSourceMissing,
				Source:  src,
				Message: fmt.Sprintf("source %s is not in data slice %d", src, sl.Year),
			})
		}
	}
	return findings, nil
}

// CheckVariablesAvailable counts the values of every source/variable of the overview in
// every slice.
func (s *Set) CheckVariablesAvailable(ctx context.Context, sources []string, overview map[string][]string) ([]Finding, error) {
	var findings []Finding
	for _, src := range sources {
		for _, variable := range overview[src] {
			for _, sl := range s.slices {
				records, err := sl.Records(ctx, datapool.SignalQuery{Source: src, Variable: variable})
				if err != nil {
					return nil, err
				}
				f := Finding{Year: sl.Year, Source: src, Variable: variable, Value: float64(len(records))}
				if len(records) == 0 {
					f.Kind = FindingVariableMissing
					f.Message = fmt.Sprintf("no entry for source %s and variable %s in data slice %d", src, variable, sl.Year)
				} else {
					f.Kind = FindingVariableCount
					f.OK = true
					f.Message = fmt.Sprintf("%d data points for source %s and variable %s in data slice %d", len(records), src, variable, sl.Year)
				}
				findings = s.record(findings, f)
			}
		}
	}
	return findings, nil
}

// CheckRainSums flags yearly rain heights outside the plausible range. Intensities are
// mm/h per minute, so the sum over a year divided by 60 is the height in mm.
func (s *Set) CheckRainSums(ctx context.Context, sources []string) ([]Finding, error) {
	var findings []Finding
	for _, src := range sources {
		for _, sl := range s.slices {
			sum, err := positiveSum(ctx, sl, src, RainVariable)
			if err != nil {
				return nil, err
			}
			mm := sum / 60
			f := Finding{Year: sl.Year, Kind: FindingRainSum, Source: src, Variable: RainVariable, Value: round2(mm)}
			if mm < MinYearlyRain || mm > MaxYearlyRain {
				f.Message = fmt.Sprintf("rain sum for source %s conspicuous with %.2f mm in data slice %d", src, f.Value, sl.Year)
			} else {
				f.OK = true
				f.Message = fmt.Sprintf("rain sum for source %s in data slice %d ok with %.2f mm", src, sl.Year, f.Value)
			}
			findings = s.record(findings, f)
		}
	}
	return findings, nil
}

// CheckFlowVolumes flags flow sensors that measured more volume than the reference, the
// plant inflow, in the same slice.
func (s *Set) CheckFlowVolumes(ctx context.Context, sources []string, reference string) ([]Finding, error) {
	refs := make(map[int]float64, len(s.slices))
	for _, sl := range s.slices {
		sum, err := positiveSum(ctx, sl, reference, FlowVariable)
		if err != nil {
			return nil, err
		}
		refs[sl.Year] = sum
	}

	var findings []Finding
	for _, src := range sources {
		for _, sl := range s.slices {
			sum, err := positiveSum(ctx, sl, src, FlowVariable)
			if err != nil {
				return nil, err
			}
			m3 := round2(sum / 1000)
			f := Finding{Year: sl.Year, Kind: FindingFlowVolume, Source: src, Variable: FlowVariable, Value: m3}
			if sum > refs[sl.Year] {
				f.Message = fmt.Sprintf("flow volume for source %s too high with %.2f m3 in data slice %d", src, m3, sl.Year)
			} else {
				f.OK = true
				f.Message = fmt.Sprintf("flow volume for source %s in data slice %d ok with %.2f m3", src, sl.Year, m3)
			}
			findings = s.record(findings, f)
		}
	}
	return findings, nil
}

// positiveSum sums the values with negatives counted as zero and missing values skipped.
func positiveSum(ctx context.Context, sl *Slice, source, variable string) (float64, error) {
	records, err := sl.Records(ctx, datapool.SignalQuery{Source: source, Variable: variable})
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, r := range records {
		if math.IsNaN(r.Value) || r.Value < 0 {
			continue
		}
		sum += r.Value
	}
	return sum, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
