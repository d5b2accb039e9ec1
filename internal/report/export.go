package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"github.com/klauspost/compress/gzip"
)

const timestampLayout = "2006-01-02 15:04:05"

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteSignalsCSV writes samples as timestamp,value rows. With compress the output is
// gzipped.
func WriteSignalsCSV(w io.Writer, samples []stats.Sample, compress bool) error {
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(w)
		w = gz
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range samples {
		if err := cw.Write([]string{s.Timestamp.Format(timestampLayout), formatValue(s.Value)}); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	if gz != nil {
		return gz.Close()
	}
	return nil
}

// WritePSRCSV writes the periods of a PSR result.
func WritePSRCSV(w io.Writer, res *stats.PSRResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "sensor", "count", "day_difference", "normalized_count"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, p := range res.Periods {
		row := []string{
			p.Timestamp.Format("2006-01-02"),
			p.Sensor,
			strconv.Itoa(p.Count),
			formatValue(p.DayDifference),
			formatValue(p.NormalizedCount),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSourceVariablesJSON writes the source to variables overview, keys sorted.
func WriteSourceVariablesJSON(w io.Writer, overview map[string][]string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(overview); err != nil {
		return fmt.Errorf("failed to encode overview: %w", err)
	}
	return nil
}

func WriteSourceTypesCSV(w io.Writer, types []datapool.SourceType) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"source_type_id", "name", "description"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, t := range types {
		if err := cw.Write([]string{strconv.FormatInt(t.ID, 10), t.Name, t.Description}); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
