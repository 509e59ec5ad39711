package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/baloghm/meterbill/internal/share"
)

func (s *Server) getInvoice(c *gin.Context) {
	inv, err := s.composer.Compose(c.Param("tenantID"), parsePrice(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) invoicePDF(c *gin.Context) {
	inv, err := s.composer.Compose(c.Param("tenantID"), parsePrice(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := s.exporter.InvoicePDF(inv)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", attachment(inv.Tenant.Name, "pdf"))
	c.Data(http.StatusOK, "application/pdf", data)
}

func (s *Server) invoiceXLSX(c *gin.Context) {
	inv, err := s.composer.Compose(c.Param("tenantID"), parsePrice(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := s.exporter.InvoiceXLSX(inv)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", attachment(inv.Tenant.Name, "xlsx"))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// shareInvoice returns the URL-embeddable payload for the tenant's current
// invoice. The client appends it to its own origin as a query parameter.
func (s *Server) shareInvoice(c *gin.Context) {
	inv, err := s.composer.Compose(c.Param("tenantID"), parsePrice(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	param, err := share.Encode(inv)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("share.encode.ok", "tenant", inv.Tenant.Name, "lines", len(inv.Lines), "param_bytes", len(param))
	c.JSON(http.StatusOK, gin.H{"d": param})
}

// loadShared reconstructs a read-only tenant and its items from a share
// parameter and installs them into the session stores.
func (s *Server) loadShared(c *gin.Context) {
	param := c.Query("d")
	if param == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": "missing d parameter"})
		return
	}
	dec, err := share.Decode(param)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "SHARE_PARSE_FAILED", "message": err.Error()})
		return
	}

	s.tenants.Install(dec.Tenant)
	for _, it := range dec.Items {
		s.items.Add(it)
	}
	s.logger.Info("share.decode.ok", "tenant", dec.Tenant.Name, "items", len(dec.Items))
	c.JSON(http.StatusOK, gin.H{
		"tenant":    dec.Tenant,
		"items":     dec.Items,
		"unitPrice": dec.UnitPrice,
	})
}

func parsePrice(c *gin.Context) float64 {
	raw := c.Query("unitPrice")
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

func attachment(tenantName, ext string) string {
	stamp := time.Now().Format("2006-01-02")
	return fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("invoice-%s-%s.%s", sanitize(tenantName), stamp, ext))
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "tenant"
	}
	return string(out)
}
