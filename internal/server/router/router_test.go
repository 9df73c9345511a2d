package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/memory"
	"github.com/mamadbah2/stockcount/internal/repository/sqlite"
	"github.com/mamadbah2/stockcount/internal/server/handlers"
	"github.com/mamadbah2/stockcount/internal/server/router"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/engine"
	"github.com/mamadbah2/stockcount/pkg/metrics"
)

type api struct {
	t       *testing.T
	handler http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()
	local, err := sqlite.NewStore(filepath.Join(t.TempDir(), "stockcount.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	registry := prometheus.NewRegistry()
	logger := zaptest.NewLogger(t)
	sessions := engine.NewRegistry(engine.Deps{
		Remote:  memory.NewStore(),
		Local:   local,
		Prefs:   local.Prefs(),
		Metrics: metrics.New(registry),
		Logger:  logger,
	}, engine.Options{DedupWindow: time.Hour, PersistDebounce: 10 * time.Millisecond})
	t.Cleanup(func() { _ = sessions.CloseAll(context.Background()) })

	return &api{t: t, handler: router.New(handlers.NewHandler(sessions, logger), registry, logger)}
}

func (a *api) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const base = "/api/users/u1"

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/healthz", nil).Code)

	a.do(http.MethodPost, base+"/session", nil)
	a.do(http.MethodPost, base+"/scan", map[string]string{"barcode": "1"})
	rec := a.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stockcount_")
}

func TestRequestsNeedASession(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPost, base+"/scan", map[string]string{"barcode": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "no active session")
}

func TestCountingFlow(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodPost, base+"/session", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := decode[engine.Status](t, rec)
	assert.Equal(t, models.DefaultWarehouseID, status.WarehouseID)
	assert.True(t, status.Online)

	rec = a.do(http.MethodPut, base+"/catalog/111", map[string]any{"description": "Tea", "provider": "acme", "stock": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodGet, base+"/catalog/111", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tea", decode[models.CatalogProduct](t, rec).Description)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, base+"/catalog/999", nil).Code)

	rec = a.do(http.MethodPost, base+"/scan", map[string]string{"barcode": "111"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scan := decode[engine.ScanResult](t, rec)
	assert.True(t, scan.Accepted)
	assert.Equal(t, 1, scan.Item.Count)

	rec = a.do(http.MethodPost, base+"/scan", map[string]string{"barcode": "111"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[engine.ScanResult](t, rec).Accepted)

	rec = a.do(http.MethodPost, base+"/items/111/set", map[string]string{"value": "2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, base+"/items/111/delta", map[string]any{"delta": 1})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[counting.Result](t, rec)
	assert.Equal(t, counting.OutcomeAwaitingConfirmation, res.Outcome)
	assert.Equal(t, 3, res.Pending.ProposedValue)

	rec = a.do(http.MethodPost, base+"/items/111/delta", map[string]any{"delta": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodGet, base+"/confirmation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "111", decode[models.PendingConfirmation](t, rec).Barcode)

	rec = a.do(http.MethodPost, base+"/confirmation/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[counting.Result](t, rec).Item.Count)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, base+"/confirmation", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, base+"/confirmation/cancel", nil).Code)

	rec = a.do(http.MethodGet, base+"/items/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.ListSummary](t, rec).OverStock)

	rec = a.do(http.MethodGet, base+"/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.CountingListItem](t, rec), 1)

	rec = a.do(http.MethodPost, base+"/items/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[counting.Result](t, rec).Affected)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, base+"/items/111", nil).Code)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, base+"/session", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, base+"/status", nil).Code)
}

func TestRejectsBadInput(t *testing.T) {
	a := newAPI(t)
	a.do(http.MethodPost, base+"/session", nil)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base+"/scan", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base+"/items/1/set", map[string]string{"value": "lots"}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base+"/items/1/delta", map[string]any{"field": "price", "delta": 1}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPut, base+"/catalog/1", map[string]any{"stock": -1}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base+"/items/start-by-provider", map[string]any{"providers": []string{" "}}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, a.do(http.MethodPost, base+"/catalog/import/sheet", nil).Code)
}

func TestCatalogEndpoints(t *testing.T) {
	a := newAPI(t)
	a.do(http.MethodPost, base+"/session", nil)

	rec := a.do(http.MethodPost, base+"/catalog/import", map[string]any{"products": []models.CatalogProduct{
		{Barcode: "1", Provider: "acme", Stock: 1},
		{Barcode: "2", Provider: "other", Stock: 2},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[map[string]int](t, rec)["imported"])

	rec = a.do(http.MethodPost, base+"/catalog/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "synced", decode[map[string]any](t, rec)["status"])

	rec = a.do(http.MethodPost, base+"/items/start-by-provider", map[string]any{"providers": []string{"ACME"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodGet, base+"/items", nil)
	items := decode[[]models.CountingListItem](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].Count)

	rec = a.do(http.MethodPut, base+"/catalog/1", map[string]any{"description": "Renamed", "provider": "acme", "stock": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodPost, base+"/items/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, counting.OutcomeApplied, decode[counting.Result](t, rec).Outcome)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, base+"/catalog/2", nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, base+"/catalog", nil).Code)
	rec = a.do(http.MethodGet, base+"/catalog", nil)
	assert.Empty(t, decode[[]models.CatalogProduct](t, rec))
}

func TestWarehouseEndpoints(t *testing.T) {
	a := newAPI(t)
	a.do(http.MethodPost, base+"/session", nil)

	rec := a.do(http.MethodPost, base+"/warehouses", map[string]string{"name": "Back"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	back := decode[models.Warehouse](t, rec)

	rec = a.do(http.MethodGet, base+"/warehouses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Warehouse](t, rec), 2)

	rec = a.do(http.MethodPut, base+"/warehouses/current", map[string]string{"id": back.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodGet, base+"/status", nil)
	assert.Equal(t, back.ID, decode[engine.Status](t, rec).WarehouseID)

	rec = a.do(http.MethodPatch, base+"/warehouses/"+back.ID, map[string]string{"name": "Cellar"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cellar", decode[models.Warehouse](t, rec).Name)

	assert.Equal(t, http.StatusConflict, a.do(http.MethodDelete, base+"/warehouses/"+models.DefaultWarehouseID, nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, base+"/warehouses/"+back.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPut, base+"/warehouses/current", map[string]string{"id": back.ID}).Code)
}
