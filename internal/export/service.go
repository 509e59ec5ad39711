// Package export renders a composed invoice into downloadable documents.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/baloghm/meterbill/internal/billing"
)

// Service is a tiny façade that turns an Invoice into document bytes.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// InvoiceXLSX returns an XLSX workbook for one tenant's invoice.
func (s *Service) InvoiceXLSX(inv *billing.Invoice) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Invoice"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Meter",
		"Start Date",
		"Start Reading",
		"End Date",
		"End Reading",
		"Usage",
		"Cost",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	row := 2
	for _, ln := range inv.Lines {
		write(1, row, ln.MeterName)
		write(2, row, ln.Result.StartReading.Date)
		write(3, row, ln.Result.StartReading.Value)
		write(4, row, ln.Result.EndReading.Date)
		write(5, row, ln.Result.EndReading.Value)
		write(6, row, ln.Result.Usage)
		write(7, row, ln.Cost)
		row++
	}

	row++
	write(6, row, "Total usage")
	write(7, row, inv.TotalUsage)
	row++
	write(6, row, "Net total")
	write(7, row, inv.NetTotal)
	row++
	write(6, row, fmt.Sprintf("VAT (%.0f%%)", inv.VATRate*100))
	write(7, row, inv.VAT)
	row++
	write(6, row, "Total due")
	write(7, row, inv.GrandTotal)

	_ = f.SetColWidth(sheet, "A", "A", 22) // meter
	_ = f.SetColWidth(sheet, "B", "E", 18) // dates and readings
	_ = f.SetColWidth(sheet, "F", "G", 14) // usage, cost

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"tenant", inv.Tenant.Name,
		"rows", len(inv.Lines),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
