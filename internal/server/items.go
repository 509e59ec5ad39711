package server

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/baloghm/meterbill/constants"
	"github.com/baloghm/meterbill/internal/analysis"
	"github.com/baloghm/meterbill/internal/llm"
)

// maxUploadBytes caps one photo upload. Phone camera JPEGs sit well under this.
const maxUploadBytes = 20 << 20

func (s *Server) listItems(c *gin.Context) {
	c.JSON(http.StatusOK, s.items.List())
}

// uploadItem accepts one or more photos from a multipart form. Files with a
// disallowed extension are rejected individually; the rest are stored IDLE.
func (s *Server) uploadItem(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": "multipart form expected"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "NO_FILES", "message": "no files in upload"})
		return
	}

	var created []*analysis.Item
	var rejected []gin.H
	for _, fh := range files {
		ext := constants.NormalizeExt(filepath.Ext(fh.Filename))
		if !constants.IsAllowedExt(ext) {
			rejected = append(rejected, gin.H{
				"fileName": fh.Filename,
				"reason":   fmt.Sprintf("extension %q not allowed, expected jpg, jpeg or png", ext),
			})
			continue
		}
		if fh.Size > maxUploadBytes {
			rejected = append(rejected, gin.H{"fileName": fh.Filename, "reason": "file too large"})
			continue
		}

		src, err := fh.Open()
		if err != nil {
			rejected = append(rejected, gin.H{"fileName": fh.Filename, "reason": "unreadable upload"})
			continue
		}
		data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
		src.Close()
		if err != nil || int64(len(data)) > maxUploadBytes {
			rejected = append(rejected, gin.H{"fileName": fh.Filename, "reason": "unreadable upload"})
			continue
		}

		thumb := s.prep.Thumbnail(data)
		it := analysis.NewItem(fh.Filename, data, thumb.Base64)
		s.items.Add(it)
		created = append(created, it)
		s.logger.Info("item.upload.ok", "item_id", it.ID, "file", fh.Filename, "bytes", len(data))
	}

	status := http.StatusCreated
	if len(created) == 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"items": created, "rejected": rejected})
}

func (s *Server) removeItem(c *gin.Context) {
	id := c.Param("id")
	if !s.items.Remove(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ITEM_NOT_FOUND"})
		return
	}
	s.logger.Info("item.remove.ok", "item_id", id)
	c.Status(http.StatusNoContent)
}

// credentialReady surfaces a missing API key once, globally, instead of
// letting every queued item fail with the same message.
func (s *Server) credentialReady(c *gin.Context) bool {
	if s.cfg.LLM.APIKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   string(llm.CodeMissingCredential),
			"message": llm.UserMessage(llm.CodeMissingCredential),
		})
		return false
	}
	return true
}

// analyzeItem queues one item for extraction. A 409 means the item is already
// running or finished successfully; retry is only offered from ERROR.
func (s *Server) analyzeItem(c *gin.Context) {
	if !s.credentialReady(c) {
		return
	}
	id := c.Param("id")
	if _, ok := s.items.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "ITEM_NOT_FOUND"})
		return
	}
	if !s.orch.Analyze(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "NOT_ELIGIBLE", "message": "item is already analyzing or done"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": 1})
}

func (s *Server) analyzeAll(c *gin.Context) {
	if !s.credentialReady(c) {
		return
	}
	n := s.orch.AnalyzeAll()
	s.logger.Info("analysis.queue_all", "queued", n)
	c.JSON(http.StatusAccepted, gin.H{"queued": n})
}

type assignmentRequest struct {
	TenantID  string `json:"tenantId"`
	MeterName string `json:"meterName"`
}

// assignItem binds or unbinds an item to a tenant meter. An empty tenantId
// clears the assignment.
func (s *Server) assignItem(c *gin.Context) {
	var req assignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": err.Error()})
		return
	}
	if req.TenantID != "" {
		t, ok := s.tenants.Get(req.TenantID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "TENANT_NOT_FOUND"})
			return
		}
		if !meterKnown(t.Meters, req.MeterName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "METER_UNKNOWN", "message": fmt.Sprintf("tenant has no meter %q", req.MeterName)})
			return
		}
	}

	id := c.Param("id")
	found := s.items.Update(id, func(it *analysis.Item) {
		it.Assignment = analysis.Assignment{TenantID: req.TenantID, MeterName: req.MeterName}
	})
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "ITEM_NOT_FOUND"})
		return
	}
	// respond from a copy; the stored item may be settled by a worker while
	// the response is being marshaled
	out, ok := s.items.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "ITEM_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, out)
}

type readingsRequest struct {
	StartValue float64 `json:"startValue"`
	EndValue   float64 `json:"endValue"`
	StartDate  string  `json:"startDate"`
	EndDate    string  `json:"endDate"`
}

// editReadings overrides the extracted values on a SUCCESS item. Usage is
// recomputed server-side; the client never submits it.
func (s *Server) editReadings(c *gin.Context) {
	var req readingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": err.Error()})
		return
	}
	id := c.Param("id")
	if _, ok := s.items.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "ITEM_NOT_FOUND"})
		return
	}
	if err := s.orch.EditReadings(id, req.StartValue, req.EndValue, req.StartDate, req.EndDate); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "EDIT_REJECTED", "message": err.Error()})
		return
	}
	it, _ := s.items.Get(id)
	c.JSON(http.StatusOK, it)
}

func meterKnown(meters []string, name string) bool {
	for _, m := range meters {
		if m == name {
			return true
		}
	}
	return false
}
