package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/baloghm/meterbill/internal/billing"
)

// A4 portrait layout, millimeters.
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	marginSide   = 15.0
	marginBottom = 15.0
	evidenceH    = 42.0 // one evidence block: thumbnail + reading lines
)

// InvoicePDF renders the invoice as a paginated A4 document: header, line
// table, totals, then one evidence block per line, breaking to a new page
// when the remaining vertical space cannot fit the next block.
func (s *Service) InvoicePDF(inv *billing.Invoice) ([]byte, error) {
	start := time.Now()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginSide, 20, marginSide)
	pdf.SetAutoPageBreak(false, marginBottom)
	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Utility Invoice", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "Tenant: "+inv.Tenant.Name, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Unit price: %.2f", inv.UnitPrice), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	// Line table
	colW := []float64{40, 34, 34, 26, 26, 20}
	headers := []string{"Meter", "Start", "End", "Usage", "Cost", ""}
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers[:5] {
		pdf.CellFormat(colW[i], 8, h, "B", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, ln := range inv.Lines {
		s.ensureSpace(pdf, 8)
		pdf.CellFormat(colW[0], 8, ln.MeterName, "", 0, "L", false, 0, "")
		pdf.CellFormat(colW[1], 8, fmt.Sprintf("%.1f", ln.Result.StartReading.Value), "", 0, "L", false, 0, "")
		pdf.CellFormat(colW[2], 8, fmt.Sprintf("%.1f", ln.Result.EndReading.Value), "", 0, "L", false, 0, "")
		pdf.CellFormat(colW[3], 8, fmt.Sprintf("%.2f", ln.Result.Usage), "", 0, "L", false, 0, "")
		pdf.CellFormat(colW[4], 8, fmt.Sprintf("%d", ln.Cost), "", 1, "L", false, 0, "")
	}

	// Totals block
	pdf.Ln(3)
	s.ensureSpace(pdf, 28)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Total usage: %.2f", inv.TotalUsage), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Net total: %d", inv.NetTotal), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("VAT (%.0f%%): %d", inv.VATRate*100, inv.VAT), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Total due: %d", inv.GrandTotal), "", 1, "R", false, 0, "")

	// Evidence pages
	if len(inv.Lines) > 0 {
		pdf.Ln(6)
		s.ensureSpace(pdf, 12)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Meter evidence", "", 1, "L", false, 0, "")
		for i, ln := range inv.Lines {
			s.ensureSpace(pdf, evidenceH)
			s.evidenceBlock(pdf, i, ln)
		}
	}

	if pdf.Err() {
		return nil, fmt.Errorf("pdf render: %v", pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf write: %w", err)
	}

	s.logger.Info("export.pdf.ok",
		"tenant", inv.Tenant.Name,
		"lines", len(inv.Lines),
		"pages", pdf.PageCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ensureSpace starts a new page when the remaining height is insufficient.
func (s *Service) ensureSpace(pdf *gofpdf.Fpdf, needed float64) {
	if pdf.GetY()+needed > pageHeight-marginBottom {
		pdf.AddPage()
	}
}

func (s *Service) evidenceBlock(pdf *gofpdf.Fpdf, idx int, ln billing.Line) {
	y := pdf.GetY()
	x := marginSide

	if ln.ThumbnailB64 != "" {
		img, err := base64.StdEncoding.DecodeString(ln.ThumbnailB64)
		if err == nil {
			name := fmt.Sprintf("evidence-%d", idx)
			opts := gofpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}
			pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img))
			pdf.ImageOptions(name, x, y, 34, 0, false, opts, 0, "")
		} else {
			s.logger.Warn("export.pdf.thumbnail_skipped", "meter", ln.MeterName, "error", err)
		}
	}

	textX := x + 40
	pdf.SetXY(textX, y)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, ln.MeterName, "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetX(textX)
	pdf.CellFormat(0, 5, fmt.Sprintf("Start: %s  =  %.1f", ln.Result.StartReading.Date, ln.Result.StartReading.Value), "", 2, "L", false, 0, "")
	pdf.SetX(textX)
	pdf.CellFormat(0, 5, fmt.Sprintf("End:   %s  =  %.1f", ln.Result.EndReading.Date, ln.Result.EndReading.Value), "", 2, "L", false, 0, "")
	pdf.SetX(textX)
	pdf.CellFormat(0, 5, fmt.Sprintf("Usage: %.2f   Cost: %d", ln.Result.Usage, ln.Cost), "", 2, "L", false, 0, "")

	pdf.SetY(y + evidenceH)
}
