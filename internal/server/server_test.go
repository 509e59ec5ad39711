package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baloghm/meterbill/constants"
	"github.com/baloghm/meterbill/internal/analysis"
	"github.com/baloghm/meterbill/internal/billing"
	"github.com/baloghm/meterbill/internal/common"
	"github.com/baloghm/meterbill/internal/export"
	"github.com/baloghm/meterbill/internal/imageprep"
	"github.com/baloghm/meterbill/internal/llm"
	"github.com/baloghm/meterbill/internal/tenant"
)

const validReply = `{
	"startReading": {"date": "2024-01-01 08:00", "value": 694957.7},
	"endReading":   {"date": "2024-02-01 08:00", "value": 705310.2}
}`

type stubExtractor struct{ err error }

func (s *stubExtractor) ExtractReadings(ctx context.Context, req llm.ExtractRequest) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(validReply), nil
}

// blockingExtractor holds every extraction until release is closed.
type blockingExtractor struct{ release chan struct{} }

func (b *blockingExtractor) ExtractReadings(ctx context.Context, req llm.ExtractRequest) ([]byte, error) {
	select {
	case <-b.release:
		return []byte(validReply), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type env struct {
	router  *gin.Engine
	tenants *tenant.Store
	items   *analysis.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, &stubExtractor{})
}

func newEnvWith(t *testing.T, ext llm.ReadingExtractor) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &common.Config{
		Server:  common.ServerConfig{Addr: ":0", AllowOrigins: []string{"*"}},
		LLM:     common.LLMConfig{APIKey: "test-key"},
		Billing: common.BillingConfig{UnitPrice: 150, VATRate: 0.10},
	}
	tenants := tenant.NewStore()
	items := analysis.NewStore()
	prep := imageprep.NewProcessor(cfg.Image, logger)
	orch := analysis.NewOrchestrator(items, ext, prep, logger, analysis.WithWorkers(2))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		orch.Shutdown(ctx)
	})
	composer := billing.NewComposer(tenants, items, cfg.Billing)
	exporter := export.NewService(logger)

	srv := New(cfg, tenants, items, orch, prep, composer, exporter, logger)
	return &env{router: srv.Routes(), tenants: tenants, items: items}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func uploadPNG(t *testing.T, e *env, fileName string) *httptest.ResponseRecorder {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 8, 8))))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", fileName)
	require.NoError(t, err)
	_, err = fw.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/items", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTenantCRUD(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/tenants", gin.H{"name": "Flat 2"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[tenant.Tenant](t, w)
	assert.Equal(t, constants.DefaultMeterNames, created.Meters)

	w = e.do(t, http.MethodPost, "/api/tenants", gin.H{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPut, "/api/tenants/"+created.ID, gin.H{"name": "Flat 2b", "meters": []string{"Gas"}})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[tenant.Tenant](t, w)
	assert.Equal(t, "Flat 2b", updated.Name)
	assert.Equal(t, []string{"Gas"}, updated.Meters)

	w = e.do(t, http.MethodGet, "/api/tenants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]tenant.Tenant](t, w), 1)

	w = e.do(t, http.MethodDelete, "/api/tenants/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodDelete, "/api/tenants/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadRejectsBadExtension(t *testing.T) {
	e := newEnv(t)
	w := uploadPNG(t, e, "reading.gif")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, e.items.Len())
}

func TestUploadAnalyzeInvoiceFlow(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/tenants", gin.H{"name": "Flat 2", "meters": []string{"Electricity"}})
	require.Equal(t, http.StatusCreated, w.Code)
	tn := decode[tenant.Tenant](t, w)

	w = uploadPNG(t, e, "meter.png")
	require.Equal(t, http.StatusCreated, w.Code)
	var uploaded struct {
		Items []analysis.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	require.Len(t, uploaded.Items, 1)
	itemID := uploaded.Items[0].ID

	w = e.do(t, http.MethodPut, "/api/items/"+itemID+"/assignment",
		gin.H{"tenantId": tn.ID, "meterName": "Electricity"})
	require.Equal(t, http.StatusOK, w.Code)

	// unknown meter name is rejected
	w = e.do(t, http.MethodPut, "/api/items/"+itemID+"/assignment",
		gin.H{"tenantId": tn.ID, "meterName": "Sauna"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/items/"+itemID+"/analyze", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		it, ok := e.items.Get(itemID)
		return ok && it.Status == constants.ItemStatusSuccess
	}, 3*time.Second, 10*time.Millisecond)

	// duplicate analyze on a finished item
	w = e.do(t, http.MethodPost, "/api/items/"+itemID+"/analyze", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodGet, "/api/invoices/"+tn.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	inv := decode[billing.Invoice](t, w)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, int64(1552875), inv.NetTotal)
	assert.Equal(t, int64(1708162), inv.GrandTotal)

	// price override via query parameter
	w = e.do(t, http.MethodGet, "/api/invoices/"+tn.ID+"?unitPrice=100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cheap := decode[billing.Invoice](t, w)
	assert.Equal(t, int64(1035250), cheap.NetTotal)

	w = e.do(t, http.MethodGet, "/api/invoices/"+tn.ID+"/xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	w = e.do(t, http.MethodGet, "/api/invoices/"+tn.ID+"/pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestEditReadingsEndpoint(t *testing.T) {
	e := newEnv(t)

	w := uploadPNG(t, e, "meter.png")
	require.Equal(t, http.StatusCreated, w.Code)
	var uploaded struct {
		Items []analysis.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	itemID := uploaded.Items[0].ID

	// editing before analysis is a conflict
	w = e.do(t, http.MethodPut, "/api/items/"+itemID+"/readings",
		gin.H{"startValue": 1, "endValue": 2})
	assert.Equal(t, http.StatusConflict, w.Code)

	e.do(t, http.MethodPost, "/api/items/"+itemID+"/analyze", nil)
	require.Eventually(t, func() bool {
		it, ok := e.items.Get(itemID)
		return ok && it.Status == constants.ItemStatusSuccess
	}, 3*time.Second, 10*time.Millisecond)

	w = e.do(t, http.MethodPut, "/api/items/"+itemID+"/readings",
		gin.H{"startValue": 100, "endValue": 175.25})
	require.Equal(t, http.StatusOK, w.Code)
	it := decode[analysis.Item](t, w)
	assert.InDelta(t, 75.25, it.Result.Usage, 1e-9)
}

func TestAssignDuringAnalysis(t *testing.T) {
	release := make(chan struct{})
	e := newEnvWith(t, &blockingExtractor{release: release})

	w := e.do(t, http.MethodPost, "/api/tenants", gin.H{"name": "Flat", "meters": []string{"Gas"}})
	require.Equal(t, http.StatusCreated, w.Code)
	tn := decode[tenant.Tenant](t, w)

	w = uploadPNG(t, e, "meter.png")
	require.Equal(t, http.StatusCreated, w.Code)
	var uploaded struct {
		Items []analysis.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	itemID := uploaded.Items[0].ID

	w = e.do(t, http.MethodPost, "/api/items/"+itemID+"/analyze", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	// let the worker settle mid-way through the reassignment loop; the
	// handler must marshal its response from a copy, never from the store's
	// own item while a worker writes Status and Result into it
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(release)
	}()
	for i := 0; i < 100; i++ {
		w = e.do(t, http.MethodPut, "/api/items/"+itemID+"/assignment",
			gin.H{"tenantId": tn.ID, "meterName": "Gas"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	require.Eventually(t, func() bool {
		it, ok := e.items.Get(itemID)
		return ok && it.Status == constants.ItemStatusSuccess
	}, 3*time.Second, 10*time.Millisecond)

	it, _ := e.items.Get(itemID)
	assert.Equal(t, "Gas", it.Assignment.MeterName)
	require.NotNil(t, it.Result)
	assert.InDelta(t, 10352.5, it.Result.Usage, 1e-9)
}

func TestTenantDeleteClearsAssignments(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/tenants", gin.H{"name": "Flat", "meters": []string{"Gas"}})
	tn := decode[tenant.Tenant](t, w)
	w = uploadPNG(t, e, "meter.png")
	var uploaded struct {
		Items []analysis.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	itemID := uploaded.Items[0].ID

	e.do(t, http.MethodPut, "/api/items/"+itemID+"/assignment",
		gin.H{"tenantId": tn.ID, "meterName": "Gas"})

	w = e.do(t, http.MethodDelete, "/api/tenants/"+tn.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	it, ok := e.items.Get(itemID)
	require.True(t, ok, "the item itself survives the tenant")
	assert.False(t, it.Assignment.Assigned())
}

func TestShareRoundTripOverHTTP(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/tenants", gin.H{"name": "Flat 2", "meters": []string{"Electricity"}})
	tn := decode[tenant.Tenant](t, w)

	w = uploadPNG(t, e, "meter.png")
	var uploaded struct {
		Items []analysis.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	itemID := uploaded.Items[0].ID

	e.do(t, http.MethodPut, "/api/items/"+itemID+"/assignment",
		gin.H{"tenantId": tn.ID, "meterName": "Electricity"})
	e.do(t, http.MethodPost, "/api/items/"+itemID+"/analyze", nil)
	require.Eventually(t, func() bool {
		it, ok := e.items.Get(itemID)
		return ok && it.Status == constants.ItemStatusSuccess
	}, 3*time.Second, 10*time.Millisecond)

	w = e.do(t, http.MethodGet, "/api/invoices/"+tn.ID+"/share", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var shareResp struct {
		D string `json:"d"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &shareResp))
	require.NotEmpty(t, shareResp.D)

	w = e.do(t, http.MethodGet, "/api/shared?d="+shareResp.D, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var loaded struct {
		Tenant tenant.Tenant   `json:"tenant"`
		Items  []analysis.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loaded))
	assert.True(t, loaded.Tenant.ReadOnly)
	assert.Equal(t, "Flat 2", loaded.Tenant.Name)
	require.Len(t, loaded.Items, 1)
	assert.True(t, loaded.Items[0].Shared)

	// the synthetic tenant is installed and immutable
	w = e.do(t, http.MethodPut, "/api/tenants/"+loaded.Tenant.ID, gin.H{"name": "nope"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// and billable like any other
	w = e.do(t, http.MethodGet, "/api/invoices/"+loaded.Tenant.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	inv := decode[billing.Invoice](t, w)
	require.Len(t, inv.Lines, 1)
}

func TestAnalyzeWithoutCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &common.Config{
		Server:  common.ServerConfig{Addr: ":0", AllowOrigins: []string{"*"}},
		Billing: common.BillingConfig{UnitPrice: 150, VATRate: 0.10},
	}
	tenants := tenant.NewStore()
	items := analysis.NewStore()
	prep := imageprep.NewProcessor(cfg.Image, logger)
	orch := analysis.NewOrchestrator(items, &stubExtractor{}, prep, logger, analysis.WithWorkers(1))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		orch.Shutdown(ctx)
	})
	srv := New(cfg, tenants, items, orch, prep,
		billing.NewComposer(tenants, items, cfg.Billing), export.NewService(logger), logger)
	e := &env{router: srv.Routes(), tenants: tenants, items: items}

	// credential misconfiguration is surfaced once, globally, not per item
	w := e.do(t, http.MethodPost, "/api/analyze", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_CREDENTIAL")

	w = uploadPNG(t, e, "meter.png")
	require.Equal(t, http.StatusCreated, w.Code)
	var uploaded struct {
		Items []analysis.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))

	w = e.do(t, http.MethodPost, "/api/items/"+uploaded.Items[0].ID+"/analyze", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	it, _ := e.items.Get(uploaded.Items[0].ID)
	assert.Equal(t, constants.ItemStatusIdle, it.Status, "nothing was queued")
}

func TestSharedMissingParam(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/api/shared", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/shared?d=not-a-payload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
