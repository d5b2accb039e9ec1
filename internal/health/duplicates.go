package health

import (
	"context"
	"log/slog"

	"github.com/eawag-uwo/sensorhealth/config"
	"github.com/eawag-uwo/sensorhealth/internal/datapool"
)

type DuplicateFinder interface {
	Duplicates(ctx context.Context, source, variable string) ([]datapool.Duplicate, error)
}

type DuplicateReport struct {
	Source     string               `json:"source"`
	Variable   string               `json:"variable"`
	Duplicates []datapool.Duplicate `json:"duplicates"`
}

// CheckDuplicates looks for repeated rows of every candidate. Only candidates with
// duplicates are reported.
func CheckDuplicates(ctx context.Context, log *slog.Logger, finder DuplicateFinder, candidates []config.DuplicateCandidate) ([]DuplicateReport, error) {
	var out []DuplicateReport
	for _, cand := range candidates {
		dups, err := finder.Duplicates(ctx, cand.Source, cand.Variable)
		if err != nil {
			return nil, err
		}
		if len(dups) == 0 {
			log.Debug("no duplicates", "source", cand.Source, "variable", cand.Variable)
			continue
		}
		var extra int64
		for _, d := range dups {
			extra += d.Occurrences - 1
		}
		log.Info("found duplicates", "source", cand.Source, "variable", cand.Variable, "rows", len(dups), "extra", extra)
		out = append(out, DuplicateReport{Source: cand.Source, Variable: cand.Variable, Duplicates: dups})
	}
	return out, nil
}
