package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/datapool"
	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/eawag-uwo/sensorhealth/internal/stats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var ErrNoData = errors.New("nothing to plot")

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 5 * vg.Inch

	heatmapColors = 100
	legendColors  = 6
	dateLayout    = "2006-01-02"
)

// Series is a named signal drawn by the line and box plots.
type Series struct {
	Name    string
	Samples []stats.Sample
}

// matrixGrid adapts a health matrix to plotter.GridXYZ with one unit per cell.
type matrixGrid struct {
	m *health.Matrix
}

func (g matrixGrid) Dims() (c, r int)   { return len(g.m.Columns), len(g.m.Rows) }
func (g matrixGrid) Z(c, r int) float64 { return g.m.Values[r][c] }
func (g matrixGrid) X(c int) float64    { return float64(c) }
func (g matrixGrid) Y(r int) float64    { return float64(r) }

// PSRHeatmap draws a matrix on a fixed 0..1 scale. Values above 1 take the top color and
// missing cells are left white.
func PSRHeatmap(path string, m *health.Matrix) error {
	return heatmap(path, m, 0, 1)
}

func heatmap(path string, m *health.Matrix, lo, hi float64) error {
	if m == nil || len(m.Rows) == 0 || len(m.Columns) == 0 {
		return ErrNoData
	}

	pal := colorMap(lo, hi).Palette(heatmapColors)
	hm := plotter.NewHeatMap(matrixGrid{m}, pal)
	hm.Min, hm.Max = lo, hi
	colors := pal.Colors()
	hm.Underflow = colors[0]
	hm.Overflow = colors[len(colors)-1]
	hm.NaN = color.White

	p := plot.New()
	p.Title.Text = m.Title
	p.Add(hm)

	labels := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		labels[i] = c.Format(dateLayout)
	}
	p.NominalX(labels...)
	p.NominalY(m.Rows...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = -1.2
	p.X.Tick.Label.YAlign = -0.5

	w := vg.Length(math.Max(6, 0.35*float64(len(m.Columns)))) * vg.Inch
	h := vg.Length(math.Max(3, 0.3*float64(len(m.Rows))+1.5)) * vg.Inch

	addColorBar(p, colorMap(lo, hi).Palette(legendColors), lo, hi)
	return save(p, w, h, path)
}

func colorMap(lo, hi float64) palette.ColorMap {
	cm := moreland.SmoothBlueRed()
	cm.SetMin(lo)
	cm.SetMax(hi)
	return cm
}

func addColorBar(p *plot.Plot, pal palette.Palette, lo, hi float64) {
	l := plot.NewLegend()
	thumbs := plotter.PaletteThumbnailers(pal)
	for i := len(thumbs) - 1; i >= 0; i-- {
		t := thumbs[i]
		switch i {
		case 0:
			l.Add(strconv.FormatFloat(lo, 'g', 3, 64), t)
		case len(thumbs) - 1:
			l.Add(strconv.FormatFloat(hi, 'g', 3, 64), t)
		default:
			l.Add("", t)
		}
	}
	p.Legend = l
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.ThumbnailWidth = 0.3 * vg.Inch
}

// ContentMatrix lays out weekly row counts with one row per source and variable. Every row
// is divided by its own maximum so sensors with different sampling rates share a scale.
// Sources in exclude are left out.
func ContentMatrix(title string, counts []datapool.WeeklyCount, exclude []string) *health.Matrix {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}

	rowValues := make(map[string]map[int64]float64)
	weeks := make(map[int64]time.Time)
	for _, c := range counts {
		if _, ok := skip[c.Source]; ok {
			continue
		}
		row := c.Source + " / " + c.Variable
		if rowValues[row] == nil {
			rowValues[row] = make(map[int64]float64)
		}
		rowValues[row][c.Week.Unix()] += float64(c.Count)
		weeks[c.Week.Unix()] = c.Week
	}

	m := &health.Matrix{Title: title, Resolution: stats.ResolutionWeek}
	for _, w := range weeks {
		m.Columns = append(m.Columns, w)
	}
	sort.Slice(m.Columns, func(i, j int) bool { return m.Columns[i].Before(m.Columns[j]) })
	for row := range rowValues {
		m.Rows = append(m.Rows, row)
	}
	sort.Strings(m.Rows)

	for _, row := range m.Rows {
		values := make([]float64, len(m.Columns))
		var peak float64
		for i, w := range m.Columns {
			v, ok := rowValues[row][w.Unix()]
			if !ok {
				values[i] = math.NaN()
				continue
			}
			values[i] = v
			peak = math.Max(peak, v)
		}
		if peak > 0 {
			for i := range values {
				values[i] /= peak
			}
		}
		m.Values = append(m.Values, values)
	}
	return m
}

// ContentHeatmap draws normalized weekly counts, see ContentMatrix.
func ContentHeatmap(path string, m *health.Matrix) error {
	return heatmap(path, m, 0, 1)
}

// IntervalHistogram draws the number of gaps per whole-minute interval.
func IntervalHistogram(path, title string, bins []stats.IntervalBin) error {
	if len(bins) == 0 {
		return ErrNoData
	}
	values := make(plotter.Values, len(bins))
	labels := make([]string, len(bins))
	for i, b := range bins {
		values[i] = float64(b.Count)
		labels[i] = strconv.Itoa(b.Minutes)
	}
	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return fmt.Errorf("failed to create bar chart: %w", err)
	}
	bars.Color = plotutil.Color(0)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "interval (min)"
	p.Y.Label.Text = "count"
	p.Add(bars)
	p.NominalX(labels...)
	return save(p, chartWidth, chartHeight, path)
}

func xys(samples []stats.Sample) plotter.XYs {
	pts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(s.Timestamp.Unix()), Y: s.Value})
	}
	return pts
}

// Timeseries draws one line per series over a shared time axis.
func Timeseries(path, title, ylabel string, series []Series) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = ylabel
	p.X.Tick.Marker = plot.TimeTicks{Format: dateLayout}
	p.Add(plotter.NewGrid())

	var drawn int
	for i, s := range series {
		pts := xys(s.Samples)
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create line for %s: %w", s.Name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Name, line)
		drawn++
	}
	if drawn == 0 {
		return ErrNoData
	}
	return save(p, chartWidth, chartHeight, path)
}

// FlattenedSignal overlays a raw signal and its trend.
func FlattenedSignal(path, title string, raw, flat []stats.Sample) error {
	return Timeseries(path, title, "", []Series{{Name: "raw", Samples: raw}, {Name: "flattened", Samples: flat}})
}

// MonthlyBoxplot draws one box per series and calendar month.
func MonthlyBoxplot(path, title, ylabel string, series []Series) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = ylabel

	var labels []string
	for i, s := range series {
		months := make(map[string]plotter.Values)
		for _, smp := range s.Samples {
			if math.IsNaN(smp.Value) || math.IsInf(smp.Value, 0) {
				continue
			}
			k := smp.Timestamp.Format("2006-01")
			months[k] = append(months[k], smp.Value)
		}
		keys := make([]string, 0, len(months))
		for k := range months {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			box, err := plotter.NewBoxPlot(vg.Points(16), float64(len(labels)), months[k])
			if err != nil {
				return fmt.Errorf("failed to create box for %s %s: %w", s.Name, k, err)
			}
			box.FillColor = plotutil.Color(i)
			p.Add(box)
			labels = append(labels, s.Name+"\n"+k)
		}
	}
	if len(labels) == 0 {
		return ErrNoData
	}
	p.NominalX(labels...)

	w := vg.Length(math.Max(6, 0.6*float64(len(labels)))) * vg.Inch
	return save(p, w, chartHeight, path)
}

// save writes the plot in the format named by the file extension.
func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", path, err)
	}
	return nil
}
