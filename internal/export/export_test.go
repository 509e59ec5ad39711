package export

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/baloghm/meterbill/internal/analysis"
	"github.com/baloghm/meterbill/internal/billing"
	"github.com/baloghm/meterbill/internal/llm"
	"github.com/baloghm/meterbill/internal/tenant"
)

func testService() *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func thumbB64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10)), nil))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testInvoice(t *testing.T) *billing.Invoice {
	res := analysis.Result{
		StartReading: llm.Reading{Date: "2024-01-01 08:00", Value: 694957.7},
		EndReading:   llm.Reading{Date: "2024-02-01 08:00", Value: 705310.2},
	}
	res.Recompute()
	return &billing.Invoice{
		Tenant:    tenant.Tenant{ID: "t1", Name: "Flat 2"},
		UnitPrice: 150,
		VATRate:   0.10,
		Lines: []billing.Line{{
			ItemID:       "item-1",
			MeterName:    "Electricity",
			Result:       res,
			Cost:         billing.LineCost(res.Usage, 150),
			ThumbnailB64: thumbB64(t),
		}},
		TotalUsage: res.Usage,
		NetTotal:   1552875,
		VAT:        155287,
		GrandTotal: 1708162,
	}
}

func TestInvoiceXLSX(t *testing.T) {
	data, err := testService().InvoiceXLSX(testInvoice(t))
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("Invoice", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Electricity", got)

	header, err := f.GetCellValue("Invoice", "G1")
	require.NoError(t, err)
	assert.Equal(t, "Cost", header)
}

func TestInvoicePDF(t *testing.T) {
	data, err := testService().InvoicePDF(testInvoice(t))
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestInvoicePDFWithoutThumbnails(t *testing.T) {
	inv := testInvoice(t)
	inv.Lines[0].ThumbnailB64 = ""
	data, err := testService().InvoicePDF(inv)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestInvoicePDFPaginatesManyLines(t *testing.T) {
	inv := testInvoice(t)
	line := inv.Lines[0]
	for i := 0; i < 15; i++ {
		inv.Lines = append(inv.Lines, line)
	}
	data, err := testService().InvoicePDF(inv)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestExportsEmptyInvoice(t *testing.T) {
	inv := &billing.Invoice{Tenant: tenant.Tenant{Name: "Empty"}, UnitPrice: 150, VATRate: 0.10}

	xlsx, err := testService().InvoiceXLSX(inv)
	require.NoError(t, err)
	assert.NotEmpty(t, xlsx)

	pdf, err := testService().InvoicePDF(inv)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
}
