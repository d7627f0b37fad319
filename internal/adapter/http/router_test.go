package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/stockledger/internal/adapter/http/dto"
	"github.com/iho/stockledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/stockledger/internal/adapter/http/middleware"
	"github.com/iho/stockledger/internal/adapter/repository/docstore"
	redisrepo "github.com/iho/stockledger/internal/adapter/repository/redis"
	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/infrastructure/metrics"
	"github.com/iho/stockledger/internal/usecase"
)

// newTestServer wires the API to an in-memory store and miniredis.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	client := documentdb.NewMemory()
	policy := docstore.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     5 * time.Millisecond,
		CallTimeout:    time.Second,
	}
	retrier := docstore.NewRetrier(policy, zerolog.Nop(), m)
	ids := docstore.NewULIDGenerator()

	pool := docstore.NewAsyncPool(1, 16, zerolog.Nop(), m)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { _ = pool.Stop(time.Second) })

	mr := miniredis.RunT(t)
	rdb := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	entries := docstore.NewEntryRepository(client, retrier, ids)
	balances := docstore.NewBalanceRepository(client, retrier, ids)
	audits := docstore.NewAuditRepository(client, retrier, ids, pool)
	tm := docstore.NewTxManager(client, policy, 5*time.Second, zerolog.Nop(), m)

	inventory := usecase.NewInventoryUseCase(tm, entries, balances, audits, redisrepo.NewCache(rdb, m), ids, zerolog.Nop(), m)
	recon := usecase.NewReconciliationUseCase(entries, balances)

	return NewRouter(RouterConfig{
		EntryHandler:     handler.NewEntryHandler(inventory),
		SubjectHandler:   handler.NewSubjectHandler(inventory, recon),
		ContainerHandler: handler.NewContainerHandler(inventory),
		HealthHandler:    handler.NewHealthHandler(docstore.NewHealthProbe(client), nil),
		IdempotencyStore: redisrepo.NewIdempotencyStore(rdb, m),
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:           zerolog.Nop(),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestNewRouter_HealthAndMetrics(t *testing.T) {
	router := newTestServer(t)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/ready", "").Code)

	rec := do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewRouter_SellThenRetract(t *testing.T) {
	router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/v1/entries",
		`{"containerId":"nursery-1","subjectId":"rose","kind":"RECEIVE","delta":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/v1/entries",
		`{"subjectId":"rose","kind":"SELL","delta":3}`, handler.ActorHeader, "clerk")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sell := decode[dto.EntryResponse](t, rec)
	assert.Equal(t, int64(-3), sell.Delta)
	assert.Equal(t, "clerk", sell.Actor)

	balance := decode[dto.BalanceResponse](t, do(t, router, http.MethodGet, "/api/v1/subjects/rose/balance", ""))
	assert.Equal(t, int64(7), balance.Quantity)

	rec = do(t, router, http.MethodDelete, "/api/v1/entries/"+sell.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	retract := decode[dto.RetractResponse](t, rec)
	assert.Equal(t, int64(3), retract.Compensation.Delta)
	assert.Equal(t, int64(10), retract.Balance.Quantity)

	// The cached balance was invalidated by the retraction.
	balance = decode[dto.BalanceResponse](t, do(t, router, http.MethodGet, "/api/v1/subjects/rose/balance", ""))
	assert.Equal(t, int64(10), balance.Quantity)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodDelete, "/api/v1/entries/"+sell.ID, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodDelete, "/api/v1/entries/"+retract.Compensation.ID, "").Code)

	recon := decode[dto.ReconciliationResponse](t, do(t, router, http.MethodGet, "/api/v1/subjects/rose/reconcile", ""))
	assert.True(t, recon.IsReconciled)

	page := decode[dto.PageResponse[dto.EntryResponse]](t, do(t, router, http.MethodGet, "/api/v1/subjects/rose/entries?includeDeleted=true", ""))
	assert.Len(t, page.Content, 3)

	page = decode[dto.PageResponse[dto.EntryResponse]](t, do(t, router, http.MethodGet, "/api/v1/containers/nursery-1/entries?size=1", ""))
	assert.Len(t, page.Content, 1)
	assert.True(t, page.HasNext)
	assert.NotEmpty(t, page.NextCursor)
}

func TestNewRouter_ErrorStatuses(t *testing.T) {
	router := newTestServer(t)

	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/v1/entries",
		`{"subjectId":"rose","kind":"RECEIVE","delta":2}`).Code)

	rec := do(t, router, http.MethodPost, "/api/v1/entries", `{"subjectId":"rose","kind":"SELL","delta":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[dto.ErrorResponse](t, rec)
	assert.Contains(t, body.Message, "insufficient balance")

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/api/v1/entries",
		`{"subjectId":"rose","kind":"COMPENSATION","delta":1}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/entries/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/subjects/fern/balance", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet,
		"/api/v1/entries?from=2024-05-02T00:00:00Z&to=2024-05-01T00:00:00Z", "").Code)
}

func TestNewRouter_IdempotentApply(t *testing.T) {
	router := newTestServer(t)
	body := `{"subjectId":"rose","kind":"RECEIVE","delta":4}`

	first := do(t, router, http.MethodPost, "/api/v1/entries", body, apimiddleware.IdempotencyKeyHeader, "k1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := do(t, router, http.MethodPost, "/api/v1/entries", body, apimiddleware.IdempotencyKeyHeader, "k1")
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, "true", second.Header().Get(apimiddleware.IdempotencyReplayHeader))
	assert.Equal(t, decode[dto.EntryResponse](t, first).ID, decode[dto.EntryResponse](t, second).ID)

	balance := decode[dto.BalanceResponse](t, do(t, router, http.MethodGet, "/api/v1/subjects/rose/balance", ""))
	assert.Equal(t, int64(4), balance.Quantity, "the replay did not apply the entry twice")
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := newTestServer(t)

	chiRoutes, ok := router.(chi.Routes)
	require.True(t, ok, "router does not implement chi.Routes")

	seen := map[string]bool{}
	require.NoError(t, chi.Walk(chiRoutes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}))

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"POST /api/v1/entries/",
		"GET /api/v1/entries/",
		"GET /api/v1/entries/{id}",
		"PUT /api/v1/entries/{id}",
		"DELETE /api/v1/entries/{id}",
		"GET /api/v1/subjects/{id}/balance",
		"PUT /api/v1/subjects/{id}/balance",
		"GET /api/v1/subjects/{id}/entries",
		"GET /api/v1/subjects/{id}/reconcile",
		"GET /api/v1/containers/{id}/entries",
		"GET /api/v1/containers/{id}/balances",
	}
	for _, route := range expected {
		assert.True(t, seen[route], fmt.Sprintf("expected route %s to be registered", route))
	}
}
