// Package report reads production back out: dashboard counters, per-hospital
// daily totals, recent records and line-level exports.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
)

// Export formats.
const (
	FormatXLSX    = "xlsx"
	FormatParquet = "parquet"
)

const sheetName = "Production"

// DefaultRecentLimit caps Recent when no limit is given.
const DefaultRecentLimit = 50

// Service answers report queries over a Store.
type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log.With().Str("component", "report").Logger()}
}

// Summary returns the dashboard counters.
func (s *Service) Summary(ctx context.Context) (*model.Dashboard, error) {
	d, err := s.store.Dashboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return d, nil
}

// Daily returns one row per hospital and day in p.
func (s *Service) Daily(ctx context.Context, p Period) ([]model.HospitalDay, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	days, err := s.store.HospitalDays(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("daily production: %w", err)
	}
	return days, nil
}

// Recent returns the newest records in p, at most limit of them.
func (s *Service) Recent(ctx context.Context, p Period, limit int) ([]model.RecordListing, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	recs, err := s.store.Records(ctx, p, limit)
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	return recs, nil
}

// Export writes every line item in p to w. It returns the number of lines
// written.
func (s *Service) Export(ctx context.Context, w io.Writer, format string, p Period) (int, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}
	lines, err := s.store.Lines(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("export lines: %w", err)
	}

	start := time.Now()
	switch format {
	case FormatXLSX:
		err = writeXLSX(w, lines)
	case FormatParquet:
		err = writeParquet(w, lines)
	default:
		return 0, apperr.Invalid("format", "unknown export format %q (want %s or %s)", format, FormatXLSX, FormatParquet)
	}
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", format, err)
	}

	s.log.Info().
		Str("format", format).
		Int("lines", len(lines)).
		Dur("duration", time.Since(start)).
		Msg("export written")
	return len(lines), nil
}

func (p Period) validate() error {
	if p.From != nil && p.To != nil && model.Day(*p.To).Before(model.Day(*p.From)) {
		return apperr.Invalid("to", "period end %s is before start %s", p.To.Format(time.DateOnly), p.From.Format(time.DateOnly))
	}
	return nil
}

var exportHeaders = []string{
	"Day", "Hospital", "Patient ID", "Patient", "Procedure Code", "Procedure",
	"Quantity", "Unit Price", "Amount", "Price Source",
}

var exportWidths = []float64{12, 24, 11, 32, 16, 28, 10, 12, 12, 13}

func exportRow(l Line) []any {
	return []any{
		l.Day.Format(time.DateOnly),
		deref(l.HospitalName),
		l.PatientID,
		l.PatientName,
		deref(l.ProcedureCode),
		l.ProcedureName,
		l.Quantity,
		l.UnitPrice.InexactFloat64(),
		l.Amount().InexactFloat64(),
		string(l.PriceSource),
	}
}

func writeXLSX(w io.Writer, lines []Line) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	moneyFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return fmt.Errorf("money style: %w", err)
	}

	for i, h := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, col, col, exportWidths[i]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}

	total := decimal.Zero
	for i, l := range lines {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := exportRow(l)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		total = total.Add(l.Amount())
	}

	// Totals row below the data.
	totalRow := len(lines) + 2
	labelCell, _ := excelize.CoordinatesToCellName(len(exportHeaders)-2, totalRow)
	amountCell, _ := excelize.CoordinatesToCellName(len(exportHeaders)-1, totalRow)
	if err := f.SetCellValue(sheetName, labelCell, "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, amountCell, total.InexactFloat64()); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, labelCell, labelCell, headerStyle); err != nil {
		return err
	}

	priceTop, _ := excelize.CoordinatesToCellName(len(exportHeaders)-2, 2)
	if err := f.SetCellStyle(sheetName, priceTop, amountCell, moneyStyle); err != nil {
		return fmt.Errorf("set money style: %w", err)
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ExportRow is the Parquet schema of a line export. Money columns are cents.
type ExportRow struct {
	RecordID       int64   `parquet:"record_id"`
	Day            string  `parquet:"day"`
	HospitalName   *string `parquet:"hospital_name,optional"`
	PatientID      int64   `parquet:"patient_id"`
	PatientName    string  `parquet:"patient_name"`
	ProcedureCode  *string `parquet:"procedure_code,optional"`
	ProcedureName  string  `parquet:"procedure_name"`
	Quantity       int32   `parquet:"quantity"`
	UnitPriceCents int64   `parquet:"unit_price_cents"`
	AmountCents    int64   `parquet:"amount_cents"`
	PriceSource    string  `parquet:"price_source"`
}

func toExportRow(l Line) ExportRow {
	return ExportRow{
		RecordID:       l.RecordID,
		Day:            l.Day.Format(time.DateOnly),
		HospitalName:   l.HospitalName,
		PatientID:      l.PatientID,
		PatientName:    l.PatientName,
		ProcedureCode:  l.ProcedureCode,
		ProcedureName:  l.ProcedureName,
		Quantity:       int32(l.Quantity),
		UnitPriceCents: normalize.DecimalToCents(l.UnitPrice),
		AmountCents:    normalize.DecimalToCents(l.Amount()),
		PriceSource:    string(l.PriceSource),
	}
}

func writeParquet(w io.Writer, lines []Line) error {
	pw := parquet.NewGenericWriter[ExportRow](w)
	batch := make([]ExportRow, 0, 1024)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}
	for _, l := range lines {
		batch = append(batch, toExportRow(l))
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return pw.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
