// Package server exposes the HTTP API consumed by the browser client.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/baloghm/meterbill/internal/analysis"
	"github.com/baloghm/meterbill/internal/billing"
	"github.com/baloghm/meterbill/internal/common"
	"github.com/baloghm/meterbill/internal/export"
	"github.com/baloghm/meterbill/internal/imageprep"
	"github.com/baloghm/meterbill/internal/tenant"
)

type Server struct {
	cfg      *common.Config
	tenants  *tenant.Store
	items    *analysis.Store
	orch     *analysis.Orchestrator
	prep     *imageprep.Processor
	composer *billing.Composer
	exporter *export.Service
	logger   *slog.Logger
}

func New(
	cfg *common.Config,
	tenants *tenant.Store,
	items *analysis.Store,
	orch *analysis.Orchestrator,
	prep *imageprep.Processor,
	composer *billing.Composer,
	exporter *export.Service,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		tenants:  tenants,
		items:    items,
		orch:     orch,
		prep:     prep,
		composer: composer,
		exporter: exporter,
		logger:   logger,
	}
}

// Routes builds the gin engine with CORS for the browser client.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(s.cfg.Server.AllowOrigins) == 1 && s.cfg.Server.AllowOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.Server.AllowOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/tenants", s.listTenants)
		api.POST("/tenants", s.createTenant)
		api.PUT("/tenants/:id", s.updateTenant)
		api.DELETE("/tenants/:id", s.deleteTenant)

		api.GET("/items", s.listItems)
		api.POST("/items", s.uploadItem)
		api.DELETE("/items/:id", s.removeItem)
		api.POST("/items/:id/analyze", s.analyzeItem)
		api.POST("/analyze", s.analyzeAll)
		api.PUT("/items/:id/assignment", s.assignItem)
		api.PUT("/items/:id/readings", s.editReadings)

		api.GET("/invoices/:tenantID", s.getInvoice)
		api.GET("/invoices/:tenantID/pdf", s.invoicePDF)
		api.GET("/invoices/:tenantID/xlsx", s.invoiceXLSX)
		api.GET("/invoices/:tenantID/share", s.shareInvoice)
		api.GET("/shared", s.loadShared)
	}
	return r
}

// fail maps store/service errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	var appErr *common.AppError
	status := http.StatusInternalServerError
	code := "INTERNAL"
	if errors.As(err, &appErr) {
		code = appErr.Code
		switch {
		case errors.Is(appErr, common.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(appErr, common.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(appErr, common.ErrConflict):
			status = http.StatusConflict
		}
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
