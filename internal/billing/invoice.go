// Package billing derives invoices from the tenant and item stores. Invoice
// data is never stored; it is recomputed from the stores on every request so
// edits to readings or prices are reflected immediately.
package billing

import (
	"fmt"
	"math"

	"github.com/baloghm/meterbill/constants"
	"github.com/baloghm/meterbill/internal/analysis"
	"github.com/baloghm/meterbill/internal/common"
	"github.com/baloghm/meterbill/internal/tenant"
)

// Line is one billed meter on an invoice, with the evidence item it came from.
type Line struct {
	ItemID       string          `json:"itemId"`
	MeterName    string          `json:"meterName"`
	Result       analysis.Result `json:"result"`
	Cost         int64           `json:"cost"`
	ThumbnailB64 string          `json:"thumbnail,omitempty"`
}

// Invoice is the derived billing document for one tenant.
type Invoice struct {
	Tenant     tenant.Tenant `json:"tenant"`
	UnitPrice  float64       `json:"unitPrice"`
	VATRate    float64       `json:"vatRate"`
	Lines      []Line        `json:"lines"`
	TotalUsage float64       `json:"totalUsage"`
	NetTotal   int64         `json:"netTotal"`
	VAT        int64         `json:"vat"`
	GrandTotal int64         `json:"grandTotal"`
}

// LineCost applies the fixed floor policy to one meter's usage.
func LineCost(usage, unitPrice float64) int64 {
	return int64(math.Floor(usage * unitPrice))
}

// Composer groups successful, assigned readings by tenant and totals them.
type Composer struct {
	tenants *tenant.Store
	items   *analysis.Store
	cfg     common.BillingConfig
}

func NewComposer(tenants *tenant.Store, items *analysis.Store, cfg common.BillingConfig) *Composer {
	return &Composer{tenants: tenants, items: items, cfg: cfg}
}

// Compose builds the invoice for one tenant. unitPrice <= 0 falls back to the
// configured default. Rounding contract, fixed and tested:
// net = sum of floor(usage * unitPrice) per line, vat = floor(net * rate),
// total = net + vat. The floor is applied per step, never compounded over
// net * (1 + rate).
func (c *Composer) Compose(tenantID string, unitPrice float64) (*Invoice, error) {
	t, ok := c.tenants.Get(tenantID)
	if !ok {
		return nil, common.NewAppError("TENANT_NOT_FOUND", fmt.Sprintf("tenant %s not found", tenantID), common.ErrNotFound)
	}
	if unitPrice <= 0 {
		unitPrice = c.cfg.UnitPrice
	}

	inv := &Invoice{
		Tenant:    *t,
		UnitPrice: unitPrice,
		VATRate:   c.cfg.VATRate,
	}

	for _, it := range c.items.List() {
		if it.Status != constants.ItemStatusSuccess || it.Result == nil {
			continue
		}
		if it.Assignment.TenantID != tenantID {
			continue
		}
		line := Line{
			ItemID:       it.ID,
			MeterName:    it.Assignment.MeterName,
			Result:       *it.Result,
			Cost:         LineCost(it.Result.Usage, unitPrice),
			ThumbnailB64: it.ThumbnailB64,
		}
		inv.Lines = append(inv.Lines, line)
		inv.TotalUsage += it.Result.Usage
		inv.NetTotal += line.Cost
	}

	inv.TotalUsage = math.Round(inv.TotalUsage*100) / 100
	inv.VAT = int64(math.Floor(float64(inv.NetTotal) * c.cfg.VATRate))
	inv.GrandTotal = inv.NetTotal + inv.VAT
	return inv, nil
}
