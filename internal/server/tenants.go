package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type tenantRequest struct {
	Name   string   `json:"name"`
	Meters []string `json:"meters"`
}

func (s *Server) listTenants(c *gin.Context) {
	c.JSON(http.StatusOK, s.tenants.List())
}

func (s *Server) createTenant(c *gin.Context) {
	var req tenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": err.Error()})
		return
	}
	t, err := s.tenants.Create(req.Name, req.Meters)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("tenant.create.ok", "tenant_id", t.ID, "meters", len(t.Meters))
	c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTenant(c *gin.Context) {
	var req tenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": err.Error()})
		return
	}
	t, err := s.tenants.Update(c.Param("id"), req.Name, req.Meters)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// deleteTenant removes the tenant and detaches any item assignments that
// pointed at it. The items themselves survive.
func (s *Server) deleteTenant(c *gin.Context) {
	id := c.Param("id")
	if !s.tenants.Delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "TENANT_NOT_FOUND"})
		return
	}
	cleared := s.items.ClearTenant(id)
	s.logger.Info("tenant.delete.ok", "tenant_id", id, "assignments_cleared", cleared)
	c.Status(http.StatusNoContent)
}
