package router

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
	"go.uber.org/zap"

	"stockledger-api/internal/cache"
	"stockledger-api/internal/handler"
	"stockledger-api/internal/metrics"
	"stockledger-api/internal/middleware"
	"stockledger-api/internal/model"
	"stockledger-api/internal/notify"
	"stockledger-api/internal/repository"
	"stockledger-api/internal/service"
)

const loginKey = "letmein"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

type api struct {
	t       *testing.T
	handler http.Handler
	main    *model.Warehouse
}

func newAPI(t *testing.T) *api {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	store, err := repository.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "ledger.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	main := &model.Warehouse{Name: "Main"}
	require.NoError(t, store.CreateWarehouse(ctx, main))
	require.NoError(t, store.CreateUser(ctx, &model.User{NationalID: "A-1", Name: "Ada", Role: model.RoleAdmin}))
	require.NoError(t, store.CreateUser(ctx, &model.User{NationalID: "E-1", Name: "Eve", Role: model.RoleEmployee, WarehouseID: &main.ID}))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })
	hub := notify.NewHub(notify.HubConfig{}, log, m)
	t.Cleanup(hub.Close)

	engine := service.NewEngine(store, hub, m, log, service.EngineConfig{LowStockThreshold: 2})
	reports := service.NewReportService(store, c, time.Minute, 2, log)
	engine.OnCommit(reports.Invalidate)
	audits := service.NewAuditService(store, engine, hub, m, log)
	catalog := service.NewCatalogService(store, engine, hub, log)
	tokens, err := service.NewTokenService(c, store, service.TokenConfig{SigningKey: []byte("test-key"), LoginKey: loginKey}, log)
	require.NoError(t, err)
	scanner := service.NewDriftScanner(store, hub, m, log, service.DriftScanConfig{})

	r := New(Config{
		Log:                log,
		Metrics:            m,
		Gatherer:           reg,
		Handler:            handler.New(store, "test", nil),
		AuthHandler:        handler.NewAuthHandler(tokens, catalog, log),
		AdminHandler:       handler.NewAdminHandler(store, hub, scanner, log),
		LogHandler:         handler.NewNotificationLogHandler(nil, log),
		WarehouseHandler:   handler.NewWarehouseHandler(catalog, log),
		ItemHandler:        handler.NewItemHandler(catalog, log),
		UserHandler:        handler.NewUserHandler(catalog, log),
		TransactionHandler: handler.NewTransactionHandler(engine, reports, log),
		AuditHandler:       handler.NewAuditHandler(audits, log),
		ReportHandler:      handler.NewReportHandler(reports, log),
		EventHandler:       handler.NewEventHandler(hub, log),
		AuthMiddleware:     middleware.NewAuthMiddleware(middleware.AuthConfig{Resolver: tokens, Log: log}),
	})
	return &api{t: t, handler: r, main: main}
}

func (a *api) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Token", token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (a *api) login(nationalID string) string {
	a.t.Helper()
	rec, env := a.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{"login_key": loginKey, "national_id": nationalID})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var tok handler.TokenResponse
	require.NoError(a.t, json.Unmarshal(env.Data, &tok))
	require.NotEmpty(a.t, tok.Token)
	return tok.Token
}

func TestPublicRoutes(t *testing.T) {
	a := newAPI(t)

	rec, _ := a.do(http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(http.MethodGet, "/api/v1/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := a.do(http.MethodGet, "/api/v1/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	rec, _ = a.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{"login_key": "nope", "national_id": "A-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stockledger_http_requests_total")
}

func TestIssueOverHTTP(t *testing.T) {
	a := newAPI(t)
	admin := a.login("A-1")
	eve := a.login("E-1")

	rec, env := a.do(http.MethodPost, "/api/v1/items", admin, map[string]interface{}{
		"name": "Rope", "warehouse_id": a.main.ID, "quantity": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item model.Item
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.EqualValues(t, 5, item.Quantity)

	rec, env = a.do(http.MethodPost, "/api/v1/transactions/issue", eve, map[string]interface{}{
		"item_id": item.ID, "quantity": 8, "recipient": "site crew",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var receipt model.Receipt
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	require.Len(t, receipt.Items, 1)
	assert.EqualValues(t, 0, receipt.Items[0].Quantity)
	assert.NotEmpty(t, receipt.GroupID)

	rec, env = a.do(http.MethodPost, "/api/v1/transactions/issue", eve, map[string]interface{}{
		"item_id": item.ID, "quantity": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, _ = a.do(http.MethodPost, "/api/v1/transactions/issue", eve, map[string]interface{}{
		"item_id": item.ID + 100, "quantity": 1, "recipient": "site crew",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = a.do(http.MethodGet, "/api/v1/transactions?item_id="+jsonInt(item.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []model.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &txs))
	assert.Len(t, txs, 2)
}

func TestEmployeeCannotManageWarehouses(t *testing.T) {
	a := newAPI(t)
	eve := a.login("E-1")

	rec, env := a.do(http.MethodPost, "/api/v1/warehouses", eve, map[string]string{"name": "Annex"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, _ = a.do(http.MethodGet, "/api/v1/admin/stats", eve, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRevokedTokenIsRejected(t *testing.T) {
	a := newAPI(t)
	admin := a.login("A-1")

	rec, _ := a.do(http.MethodGet, "/api/v1/auth/me", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(http.MethodPost, "/api/v1/auth/revoke", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(http.MethodGet, "/api/v1/auth/me", admin, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
