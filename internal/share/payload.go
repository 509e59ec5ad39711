// Package share encodes one tenant's invoice into a compact, URL-embeddable
// payload and reconstructs a read-only view from it. The short JSON keys are
// part of the wire format; the target is a link of a few kilobytes.
package share

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baloghm/meterbill/constants"
	"github.com/baloghm/meterbill/internal/analysis"
	"github.com/baloghm/meterbill/internal/billing"
	"github.com/baloghm/meterbill/internal/common"
	"github.com/baloghm/meterbill/internal/llm"
	"github.com/baloghm/meterbill/internal/tenant"
)

// ErrParse marks an undecodable share parameter. Fatal to the shared-view
// bootstrap; nothing is installed when it fires.
var ErrParse = errors.New("share link parse failed")

type sharedItem struct {
	N   string  `json:"n"`             // meter name
	S   float64 `json:"s"`             // start value
	SD  string  `json:"sd"`            // start date
	E   float64 `json:"e"`             // end value
	ED  string  `json:"ed"`            // end date
	U   float64 `json:"u"`             // usage (informational; recomputed on decode)
	Img string  `json:"img,omitempty"` // optional thumbnail base64
}

type payload struct {
	T string       `json:"t"` // tenant name
	P float64      `json:"p"` // unit price
	I []sharedItem `json:"i"`
}

// Encode serializes the invoice into a percent-encoded query value.
func Encode(inv *billing.Invoice) (string, error) {
	p := payload{
		T: inv.Tenant.Name,
		P: inv.UnitPrice,
		I: make([]sharedItem, 0, len(inv.Lines)),
	}
	for _, ln := range inv.Lines {
		p.I = append(p.I, sharedItem{
			N:   ln.MeterName,
			S:   ln.Result.StartReading.Value,
			SD:  ln.Result.StartReading.Date,
			E:   ln.Result.EndReading.Value,
			ED:  ln.Result.EndReading.Date,
			U:   ln.Result.Usage,
			Img: ln.ThumbnailB64,
		})
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", common.WrapError(err, "encode share payload")
	}
	return url.QueryEscape(string(b)), nil
}

// Decoded is the reconstructed read-only view of a shared invoice.
type Decoded struct {
	Tenant    *tenant.Tenant
	Items     []*analysis.Item
	UnitPrice float64
}

// Decode parses a share parameter back into a synthetic read-only tenant and
// success items. Items are flagged Shared, carry no original image, and
// their usage is recomputed from the embedded readings rather than trusted
// from the wire.
func Decode(param string) (*Decoded, error) {
	// A query layer may have percent-decoded the parameter already. Decoding
	// twice would turn a base64 "+" into a space, so only unescape when the
	// payload is still in its escaped form.
	raw := param
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		u, err := url.QueryUnescape(param)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		raw = u
	}
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if strings.TrimSpace(p.T) == "" {
		return nil, fmt.Errorf("%w: missing tenant name", ErrParse)
	}

	t := &tenant.Tenant{
		ID:       "shared-" + uuid.New().String(),
		Name:     p.T,
		Meters:   make([]string, 0, len(p.I)),
		ReadOnly: true,
	}

	items := make([]*analysis.Item, 0, len(p.I))
	for _, si := range p.I {
		t.Meters = append(t.Meters, si.N)
		res := analysis.Result{
			StartReading: llm.Reading{Date: si.SD, Value: si.S},
			EndReading:   llm.Reading{Date: si.ED, Value: si.E},
		}
		res.Recompute()
		it := &analysis.Item{
			ID:           uuid.New().String(),
			FileName:     si.N,
			ImageData:    nil, // zero-byte placeholder; thumbnail is the only evidence
			ThumbnailB64: si.Img,
			Status:       constants.ItemStatusSuccess,
			Result:       &res,
			Assignment:   analysis.Assignment{TenantID: t.ID, MeterName: si.N},
			Shared:       true,
			CreatedAt:    time.Now().UTC(),
		}
		items = append(items, it)
	}

	return &Decoded{Tenant: t, Items: items, UnitPrice: p.P}, nil
}
