package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/and161185/grovi/internal/model"
)

// XLSXContentType is the content type of workbook downloads.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TimeSeries is a titled series ready for download.
type TimeSeries struct {
	FieldName string
	Index     model.IndexType
	Kind      model.TimeSeriesKind
	Points    []model.TimeSeriesPoint
}

var timeSeriesHeader = []string{"field_name", "vi_type", "date", "month", "value"}

// rows renders the table body. Ten-year averages are labelled by year only.
func (ts TimeSeries) rows() [][]string {
	name := ts.FieldName
	if name == "" {
		name = "unknown"
	}
	out := make([][]string, 0, len(ts.Points))
	for _, p := range ts.Points {
		date, month := p.Date.Format("2006-01-02"), fmt.Sprintf("%02d", int(p.Date.Month()))
		if ts.Kind == model.TenYearAvg {
			date, month = strconv.Itoa(p.Date.Year()), ""
		}
		out = append(out, []string{name, string(ts.Index), date, month, strconv.FormatFloat(p.Value, 'f', 4, 64)})
	}
	return out
}

// Filename returns the download base name, e.g. "north_plot_NDVI_full_year".
func (ts TimeSeries) Filename(fallback string) string {
	return SafeFilename(ts.FieldName, fallback) + "_" + string(ts.Index) + "_" + string(ts.Kind)
}

// TimeSeriesCSV renders the series as BOM-prefixed CSV with every cell quoted.
func TimeSeriesCSV(ts TimeSeries) []byte {
	lines := []string{quoteAll(timeSeriesHeader)}
	for _, r := range ts.rows() {
		lines = append(lines, quoteAll(r))
	}
	return []byte(bom + strings.Join(lines, "\n"))
}

// TimeSeriesXLSX writes the series as a single-sheet workbook.
func TimeSeriesXLSX(w io.Writer, ts TimeSeries) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := string(ts.Index)
	if sheet == "" {
		sheet = "series"
	}
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
	}

	for i, h := range timeSeriesHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range ts.rows() {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var val any = v
			if c == len(row)-1 {
				// numeric cell
				val = ts.Points[r].Value
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 24)
	_ = f.SetColWidth(sheet, "C", "C", 12)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
