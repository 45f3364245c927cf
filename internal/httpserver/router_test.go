package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"orderflow/internal/auth"
	"orderflow/internal/handler"
	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/internal/repository/memory"
	"orderflow/pkg/rbac"
	"orderflow/pkg/trace"
	"orderflow/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "router-test-secret"

type testServer struct {
	router *Router
	store  *memory.Store
}

func newTestServer(t *testing.T, ready ReadinessCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	hash, err := util.HashPassword("pw")
	require.NoError(t, err)
	store.PutAdminUser(model.AdminUser{Email: "admin@example.com", PasswordHash: hash, Role: rbac.RoleAdmin})

	logger := zap.NewNop()
	svc := orderflow.NewService(store, logger)
	router := NewRouter(
		handler.NewOrderHandler(svc, logger),
		handler.NewAuthHandler(auth.NewService(store, testSecret, time.Hour), logger),
		testSecret,
		ready,
		logger,
	)
	return &testServer{router: router, store: store}
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	tok, err := util.GenerateJWT(1, role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.Engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, func(context.Context) error { return errors.New("db down") })

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName))

	w = s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTraceHeaderPropagated(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName, "trace-abc")
	w := httptest.NewRecorder()
	s.router.Engine.ServeHTTP(w, req)
	assert.Equal(t, "trace-abc", w.Header().Get(trace.HeaderName))
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/login", "", gin.H{"email": "admin@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, rbac.RoleAdmin, body["role"])

	w = s.do(t, http.MethodGet, "/api/orders", body["token"], nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/login", "", gin.H{"email": "admin@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/login", "", gin.H{"email": "admin@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthAndPermissions(t *testing.T) {
	s := newTestServer(t, nil)
	order := gin.H{"client_id": 3, "title": "DEX", "project_type": "DEFI_PROTOCOL"}

	w := s.do(t, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/orders", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/orders", tokenFor(t, rbac.RoleViewer), order)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/orders", tokenFor(t, rbac.RoleOperator), order)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/orders", tokenFor(t, rbac.RoleAdmin), order)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	admin := tokenFor(t, rbac.RoleAdmin)
	operator := tokenFor(t, rbac.RoleOperator)

	w := s.do(t, http.MethodPost, "/api/orders", admin, gin.H{"client_id": 9, "title": "NFT drop", "project_type": "NFT_MARKETPLACE"})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[model.Order](t, w)

	base := "/api/orders/" + strconv.Itoa(order.ID)

	w = s.do(t, http.MethodPost, base+"/milestones", operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	milestones := decode[map[string][]model.Milestone](t, w)["milestones"]
	assert.Len(t, milestones, 6)

	w = s.do(t, http.MethodPost, base+"/status", admin, gin.H{"status": "COMPLETED"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, base+"/status", admin, gin.H{"status": "APPROVED", "trigger": "MANUAL", "metadata": gin.H{"note": "paid"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, decode[model.Order](t, w).Progress)

	w = s.do(t, http.MethodPost, base+"/phases/complete", operator, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, base+"/phases", operator, gin.H{"phase": "DESIGN"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, base+"/phases", operator, gin.H{"phase": "NAPPING"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base+"/quality-checks", operator, gin.H{"check_type": "CLIENT_ACCEPTANCE", "automated": false})
	require.Equal(t, http.StatusCreated, w.Code)
	check := decode[model.QualityCheck](t, w)
	assert.Equal(t, model.QualityStatusInProgress, check.Status)

	w = s.do(t, http.MethodPost, "/api/quality-checks/"+strconv.Itoa(check.ID)+"/complete", operator, gin.H{"status": "PASSED", "score": 95})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/quality-checks/"+strconv.Itoa(check.ID)+"/complete", operator, gin.H{"status": "PASSED"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, base+"/flow", operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	flow := decode[orderflow.FlowStatus](t, w)
	assert.Equal(t, model.PhaseDesign, flow.CurrentPhase)
	assert.Equal(t, 1, flow.CompletedMilestones)

	w = s.do(t, http.MethodGet, base+"/completion", operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["complete"])

	w = s.do(t, http.MethodGet, base+"/meetings?pattern=biweekly+tuesday&count=3", operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]map[string]any](t, w)["meetings"], 3)

	w = s.do(t, http.MethodGet, base+"/meetings?pattern=yearly", operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderNotFoundAndBadIDs(t *testing.T) {
	s := newTestServer(t, nil)
	viewer := tokenFor(t, rbac.RoleViewer)

	w := s.do(t, http.MethodGet, "/api/orders/77", viewer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/orders/abc", viewer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/orders/77/completion", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["complete"])

	w = s.do(t, http.MethodGet, "/api/orders?status=SHIPPED", viewer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type unavailableEvaluator struct{}

func (unavailableEvaluator) Evaluate(context.Context, *model.Order, model.QualityCheckType) (orderflow.EvaluationResult, error) {
	return orderflow.EvaluationResult{}, errors.New("scanner unreachable")
}

func TestQualityCheckEvaluationDeferred(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	logger := zap.NewNop()
	svc := orderflow.NewService(store, logger, orderflow.WithEvaluator(unavailableEvaluator{}))
	s := &testServer{
		router: NewRouter(
			handler.NewOrderHandler(svc, logger),
			handler.NewAuthHandler(auth.NewService(store, testSecret, time.Hour), logger),
			testSecret,
			nil,
			logger,
		),
		store: store,
	}
	admin := tokenFor(t, rbac.RoleAdmin)

	w := s.do(t, http.MethodPost, "/api/orders", admin, gin.H{"client_id": 3, "title": "Vault", "project_type": "SMART_CONTRACT"})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[model.Order](t, w)

	w = s.do(t, http.MethodPost, "/api/orders/"+strconv.Itoa(order.ID)+"/quality-checks", admin, gin.H{"check_type": "SECURITY_AUDIT", "automated": true})
	require.Equal(t, http.StatusAccepted, w.Code)

	var body struct {
		Check model.QualityCheck `json:"check"`
		Error string             `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, model.QualityStatusInProgress, body.Check.Status)
	assert.Contains(t, body.Error, "scanner unreachable")
}
