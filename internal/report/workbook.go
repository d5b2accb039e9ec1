package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/health"
	"github.com/xuri/excelize/v2"
)

const (
	SheetSuspicious   = "Suspicious"
	SheetUnsuspicious = "Unsuspicious"
	SheetSkipped      = "Skipped"
	SheetDrift        = "Drift"

	// Tables start below the title row and a blank row.
	headerRow = 3
)

var psrHeader = []any{"source_name", "last_recorded_PSR", "mean of last 4 months", "Last weeks PSR", "z_score"}

// PSRTitle is the workbook title of a report generated at t.
func PSRTitle(t time.Time) string {
	return "PSR_Report_" + t.Format("2006-01-02")
}

// WritePSRWorkbook writes the report as an xlsx file with one sheet per verdict.
func WritePSRWorkbook(path string, r *health.PSRReport, title string) error {
	if r == nil {
		return errors.New("report is required")
	}
	if title == "" {
		title = PSRTitle(r.GeneratedAt)
	}

	f := excelize.NewFile()
	defer f.Close()

	wb, err := newWorkbook(f)
	if err != nil {
		return err
	}

	for _, s := range []struct {
		name string
		rows []health.PSRRow
	}{
		{SheetSuspicious, r.Suspicious},
		{SheetUnsuspicious, r.Unsuspicious},
	} {
		rows := make([][]any, 0, len(s.rows))
		for _, row := range s.rows {
			rows = append(rows, []any{row.Source, row.LastRecorded, row.OldMean, row.Current, row.ZScore})
		}
		if err := wb.table(s.name, title+" "+s.name, psrHeader, rows); err != nil {
			return err
		}
	}

	skipped := make([][]any, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		skipped = append(skipped, []any{s.Source, s.Reason})
	}
	if err := wb.table(SheetSkipped, title+" "+SheetSkipped, []any{"source_name", "reason"}, skipped); err != nil {
		return err
	}

	if err := wb.finish(); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// WriteDriftWorkbook writes drift results to a single sheet.
func WriteDriftWorkbook(path string, results []health.DriftResult, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	wb, err := newWorkbook(f)
	if err != nil {
		return err
	}
	header := []any{"source_name", "similar_to", "parameter", "statistic", "p_value", "current_n", "historic_n", "drifting", "error"}
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, []any{r.Source, r.SimilarTo, r.Parameter, r.Statistic, r.PValue, r.CurrentN, r.HistoricN, r.Drifting, r.Error})
	}
	if err := wb.table(SheetDrift, "Drift_Report_"+generatedAt.Format("2006-01-02"), header, rows); err != nil {
		return err
	}
	if err := wb.finish(); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

type workbook struct {
	f            *excelize.File
	defaultSheet string
	titleStyle   int
	headerStyle  int
}

func newWorkbook(f *excelize.File) (*workbook, error) {
	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return nil, fmt.Errorf("failed to create title style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	return &workbook{
		f:            f,
		defaultSheet: f.GetSheetName(0),
		titleStyle:   titleStyle,
		headerStyle:  headerStyle,
	}, nil
}

func (w *workbook) table(sheet, title string, header []any, rows [][]any) error {
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	if err := w.f.SetCellStr(sheet, "A1", title); err != nil {
		return err
	}
	if err := w.f.SetCellStyle(sheet, "A1", "A1", w.titleStyle); err != nil {
		return err
	}

	start, err := excelize.CoordinatesToCellName(1, headerRow)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, start, &header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", sheet, err)
	}
	end, err := excelize.CoordinatesToCellName(len(header), headerRow)
	if err != nil {
		return err
	}
	if err := w.f.SetCellStyle(sheet, start, end, w.headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, headerRow+1+i)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i, sheet, err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	return w.f.SetColWidth(sheet, "A", last, 22)
}

// finish drops the sheet excelize creates with a new file.
func (w *workbook) finish() error {
	if err := w.f.DeleteSheet(w.defaultSheet); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	w.f.SetActiveSheet(0)
	return nil
}
