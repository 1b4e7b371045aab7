package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/handler"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/cache"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/memstore"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/query"
	"github.com/boddenberg/finance-dashboard-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

// countingStore records every transaction read or write that reaches it.
type countingStore struct {
	*memstore.Store
	calls   atomic.Int32
	pingErr error
}

func (s *countingStore) Insert(ctx context.Context, t *domain.Transaction) error {
	s.calls.Add(1)
	return s.Store.Insert(ctx, t)
}

func (s *countingStore) FindOne(ctx context.Context, owner, id string) (*domain.Transaction, error) {
	s.calls.Add(1)
	return s.Store.FindOne(ctx, owner, id)
}

func (s *countingStore) Find(ctx context.Context, pred query.Predicate, page query.Page) ([]domain.Transaction, error) {
	s.calls.Add(1)
	return s.Store.Find(ctx, pred, page)
}

func (s *countingStore) Count(ctx context.Context, pred query.Predicate) (int, error) {
	s.calls.Add(1)
	return s.Store.Count(ctx, pred)
}

func (s *countingStore) Group(ctx context.Context, pred query.Predicate, keys []query.GroupKey) ([]query.GroupRow, error) {
	s.calls.Add(1)
	return s.Store.Group(ctx, pred, keys)
}

func (s *countingStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.Store.Ping(ctx)
}

// --- Fixture ---

type testServer struct {
	router http.Handler
	store  *countingStore
	auth   *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := &countingStore{Store: memstore.New()}
	c := cache.New[any](time.Minute)
	t.Cleanup(c.Close)

	auth := service.NewAuthService(store, nil, "handler-test-secret", time.Hour, metrics, logger)
	svcs := handler.Services{
		Auth:         auth,
		Transactions: service.NewTransactionService(store, nil, c, logger),
		Dashboard:    service.NewDashboardService(store, c, metrics, logger),
		Export:       service.NewExportService(store, metrics, logger),
		Store:        store,
		StoreName:    "memory",
		CircuitState: func() string { return "closed" },
	}
	return &testServer{
		router: handler.NewRouter(svcs, metrics, logger, []string{"http://localhost:3000"}),
		store:  store,
		auth:   auth,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, name string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp domain.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Message string              `json:"message"`
	Errors  []domain.FieldError `json:"errors"`
}

// --- Operational endpoints ---

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/ping"} {
		t.Run(path, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestHealthz_DegradedWhenStoreDown(t *testing.T) {
	s := newTestServer(t)
	s.store.pingErr = errors.New("connection refused")

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[domain.HealthStatus](t, rec)
	assert.Equal(t, "degraded", health.Status)
	require.Len(t, health.Services, 2)
	assert.Equal(t, "memory", health.Services[1].Name)

	rec = s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --- Access gate ---

func TestProtectedRoutes_RejectWithoutTouchingStore(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		method  string
		path    string
		header  string
		message string
	}{
		{"missing header", http.MethodGet, "/api/transactions", "", "Authentication required"},
		{"wrong scheme", http.MethodGet, "/api/dashboard/summary", "Basic abc", "Authentication required"},
		{"garbage token", http.MethodPost, "/api/export/csv", "Bearer not-a-jwt", "Invalid or expired token"},
		{"garbage token on categories", http.MethodGet, "/api/transactions/categories", "Bearer x.y.z", "Invalid or expired token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.message, decodeBody[errorBody](t, rec).Message)
		})
	}
	assert.Zero(t, s.store.calls.Load())
}

func TestAdminStats_RequiresAdminRole(t *testing.T) {
	s := newTestServer(t)
	userToken := s.register(t, "plainuser")

	rec := s.do(t, http.MethodGet, "/api/admin/stats", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions", decodeBody[errorBody](t, rec).Message)

	ctx := context.Background()
	_, err := s.auth.CreateUser(ctx, &domain.RegisterRequest{Username: "root", Email: "root@example.com", Password: "secret123"}, domain.RoleAdmin)
	require.NoError(t, err)
	login, err := s.auth.Login(ctx, &domain.LoginRequest{Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/api/admin/stats", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeBody[domain.AdminStats](t, rec)
	assert.Equal(t, "healthy", stats.Store.Status)
	require.NotNil(t, stats.Metrics)
	assert.Equal(t, "closed", stats.Metrics.CircuitState)
}

// --- Auth ---

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice")

	rec := s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[domain.MeResponse](t, rec)
	assert.Equal(t, "alice", me.User.Username)

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "nope-nope",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decodeBody[errorBody](t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeBody[errorBody](t, rec).Errors)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Transactions ---

func TestTransactionsScenario(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")

	rec := s.do(t, http.MethodPost, "/api/transactions", alice, map[string]any{
		"amount": 42.5, "type": "expense", "category": "Groceries", "date": "2024-01-08",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[domain.Transaction](t, rec)
	assert.Equal(t, domain.StatusCompleted, created.Status)

	rec = s.do(t, http.MethodGet, "/api/transactions?category=Groceries", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[domain.PaginatedTransactions](t, rec)
	require.Len(t, page.Data, 1)
	assert.Equal(t, created.ID, page.Data[0].ID)
	assert.Equal(t, domain.PageInfo{Total: 1, Page: 1, Limit: 10, Pages: 1}, page.Pagination)

	rec = s.do(t, http.MethodGet, "/api/transactions?category=Groceries", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[domain.PaginatedTransactions](t, rec).Data)

	rec = s.do(t, http.MethodGet, "/api/transactions/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Transaction not found", decodeBody[errorBody](t, rec).Message)

	rec = s.do(t, http.MethodPut, "/api/transactions/"+created.ID, alice, map[string]any{
		"category": "Food", "userId": "bob",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[domain.Transaction](t, rec)
	assert.Equal(t, "Food", updated.Category)
	assert.Equal(t, created.UserID, updated.UserID)

	rec = s.do(t, http.MethodGet, "/api/transactions/categories", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Food"}, decodeBody[[]string](t, rec))

	rec = s.do(t, http.MethodDelete, "/api/transactions/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/transactions/"+created.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Transaction deleted successfully", decodeBody[errorBody](t, rec).Message)

	rec = s.do(t, http.MethodGet, "/api/transactions/not-a-uuid", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTransaction_ValidationErrors(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "carol")
	before := s.store.calls.Load()

	rec := s.do(t, http.MethodPost, "/api/transactions", token, map[string]any{"amount": -1, "type": "gift"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "Validation failed", body.Message)
	assert.Len(t, body.Errors, 3)
	assert.Equal(t, before, s.store.calls.Load())
}

func TestListTransactions_BadParameters(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "dave")
	before := s.store.calls.Load()

	for _, q := range []string{
		"?limit=abc",
		"?page=1.5",
		"?minAmount=ten",
		"?sortField=password",
		"?type=transfer",
		"?startDate=tomorrow",
	} {
		t.Run(q, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/transactions"+q, token, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, before, s.store.calls.Load())
}

// --- Dashboard ---

func TestDashboardEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "erin")
	for _, body := range []map[string]any{
		{"amount": 500, "type": "income", "category": "Salary", "date": "2024-01-05"},
		{"amount": 200, "type": "expense", "category": "Rent", "date": "2024-01-20"},
		{"amount": 50, "type": "expense", "category": "Food", "date": "2024-02-03"},
	} {
		rec := s.do(t, http.MethodPost, "/api/transactions", token, body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/dashboard/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"totalRevenue":500,"totalExpenses":250,"netBalance":250,"totalTransactions":3,"pendingTransactions":0}`,
		rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/dashboard/charts/revenue-expense", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"month":"Jan 2024","income":500,"expense":200},{"month":"Feb 2024","income":0,"expense":50}]`,
		rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/dashboard/charts/category-breakdown?type=expense", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"category":"Rent","amount":200,"percentage":80},{"category":"Food","amount":50,"percentage":20}]`,
		rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/dashboard/charts/category-breakdown?type=income&startDate=2030-01-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

// --- Export ---

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "frank")

	rec := s.do(t, http.MethodPost, "/api/export/csv", token, map[string]any{"fields": []string{"date"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No transactions found matching the criteria", decodeBody[errorBody](t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/export/csv", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Fields are required for CSV export", decodeBody[errorBody](t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 19.99, "type": "expense", "category": "Books", "date": "2024-03-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/export/csv", token, map[string]any{
		"fields":  []string{"date", "amount", "category"},
		"filters": map[string]any{"type": "expense"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=transactions.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "date,amount,category\n2024-03-01,19.99,Books\n", rec.Body.String())
}
