package decentlab

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Table is the wide form of a query result: one row per timestamp, one column per series.
// Missing values are NaN.
type Table struct {
	Times  []time.Time
	Series []string
	Values [][]float64
}

// Pivot turns long-form points into a table. Several values for the same timestamp and
// series are averaged, NaN values are ignored.
func Pivot(points []Point) Table {
	type cell struct {
		sum float64
		n   int
	}
	seriesSet := make(map[string]struct{})
	timeSet := make(map[int64]time.Time)
	cells := make(map[int64]map[string]*cell)

	for _, p := range points {
		seriesSet[p.Series] = struct{}{}
		key := p.Time.UnixNano()
		timeSet[key] = p.Time
		if math.IsNaN(p.Value) {
			continue
		}
		row, ok := cells[key]
		if !ok {
			row = make(map[string]*cell)
			cells[key] = row
		}
		c, ok := row[p.Series]
		if !ok {
			c = &cell{}
			row[p.Series] = c
		}
		c.sum += p.Value
		c.n++
	}

	var t Table
	for s := range seriesSet {
		t.Series = append(t.Series, s)
	}
	sort.Strings(t.Series)

	keys := make([]int64, 0, len(timeSet))
	for k := range timeSet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		row := make([]float64, len(t.Series))
		for i, s := range t.Series {
			row[i] = math.NaN()
			if c, ok := cells[k][s]; ok && c.n > 0 {
				row[i] = c.sum / float64(c.n)
			}
		}
		t.Times = append(t.Times, timeSet[k])
		t.Values = append(t.Values, row)
	}
	return t
}

type CSVOptions struct {
	// Device decides whether temperature probe ids are kept (bt_dl devices only).
	Device   string
	Location *time.Location
}

const (
	loraBandwidthColumn = "bandwidth.link-lora"
	probeIDColumn       = "maxim-ds18b20-id"
)

// WriteCSV writes the table in the field export layout: ';' separated, decimal comma,
// local timestamps with offset and zone name columns.
func WriteCSV(w io.Writer, t Table, opts CSVOptions) error {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	keep := make([]int, 0, len(t.Series))
	droppedBandwidth := false
	for i, s := range t.Series {
		if !droppedBandwidth && strings.Contains(s, loraBandwidthColumn) {
			droppedBandwidth = true
			continue
		}
		if !strings.HasPrefix(opts.Device, "bt_dl") && strings.Contains(s, probeIDColumn) {
			continue
		}
		keep = append(keep, i)
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'

	header := []string{"timestamp"}
	for _, i := range keep {
		header = append(header, t.Series[i])
	}
	header = append(header, "tzOffset", "tzName")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	seen := make(map[string]struct{}, len(t.Times))
	for r, ts := range t.Times {
		local := ts.In(loc)
		stamp := local.Format("2006-01-02 15:04:05")
		if _, dup := seen[stamp]; dup {
			continue
		}
		seen[stamp] = struct{}{}

		record := make([]string, 0, len(keep)+3)
		record = append(record, stamp)
		for _, i := range keep {
			record = append(record, formatDecimalComma(t.Values[r][i]))
		}
		record = append(record, local.Format("-0700"), loc.String())
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatDecimalComma(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strings.Replace(strconv.FormatFloat(v, 'g', 6, 64), ".", ",", 1)
}
