package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrax/pettyflow/internal/auth"
	"github.com/fintrax/pettyflow/internal/disburse"
	"github.com/fintrax/pettyflow/internal/engine"
	"github.com/fintrax/pettyflow/internal/ledger"
	"github.com/fintrax/pettyflow/internal/llm"
	"github.com/fintrax/pettyflow/internal/model"
	"github.com/fintrax/pettyflow/internal/testutil"
	"github.com/fintrax/pettyflow/internal/voucher"
)

const testSecret = "api-test-secret"

type testServer struct {
	server *Server
	mock   *engine.MockClassifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.Default()
	store := testutil.SetupTestDB(t)
	mock := engine.NewMockClassifier()
	eng := engine.New(store, mock, logger)
	cashbook := ledger.NewCashbook(store, logger)
	lifecycle := disburse.NewService(store, cashbook, logger)
	poster := voucher.NewPoster(store, voucher.Config{BaseURL: "http://voucher.invalid"}, logger)

	server := NewServer(Config{Addr: ":0", JWTSecret: testSecret},
		store, eng, lifecycle, cashbook, poster, logger)
	return &testServer{server: server, mock: mock}
}

func token(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	claims := auth.Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsAreUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/metrics", "", nil).Code)
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/cashbook/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClassifyBatchEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.Response = llm.ClassificationResponse{
		Intent:        model.Intent{Category: "meals"},
		SuggestedCode: "6006",
		Confidence:    0.85,
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/classify/batch", token(t, "user-1", auth.RoleRequestor), map[string]any{
		"line_items": []map[string]string{
			{"id": "a", "description": "fuel for generator", "amount": "100.00"},
			{"id": "b", "description": "team lunch", "amount": "60.00"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []model.ClassificationResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a", resp.Results[0].ItemID)
	assert.Equal(t, model.MethodRule, resp.Results[0].Method)
	assert.Equal(t, "b", resp.Results[1].ItemID)
	assert.Equal(t, model.MethodAI, resp.Results[1].Method)
}

func TestClassifyRejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/classify", token(t, "user-1", auth.RoleRequestor), map[string]any{
		"description": "fuel", "amount": "5.00", "surprise": true,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// TestRequisitionLifecycleOverHTTP drives the whole cash cycle through the
// API: create, submit, authorise, disburse, receive, expenses, change and
// confirmation, checking status codes and the final balance.
func TestRequisitionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	requestorToken := token(t, "user-req", auth.RoleRequestor)
	approverToken := token(t, "user-app", auth.RoleApprover)
	cashierToken := token(t, "user-cash", auth.RoleCashier)

	// Seed the float.
	rec := ts.do(t, http.MethodPost, "/api/v1/cashbook/inflow", cashierToken, map[string]any{
		"amount": "2000", "description": "opening float",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Create.
	rec = ts.do(t, http.MethodPost, "/api/v1/requisitions", requestorToken, map[string]any{
		"purpose": "site running costs",
		"type":    "EXPENSE",
		"items": []map[string]string{
			{"description": "fuel for generator", "quantity": "20", "unit_price": "15"},
			{"description": "office stationery", "quantity": "1", "unit_price": "200"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.Requisition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, model.StatusDraft, created.Status)
	assert.True(t, created.EstimatedTotal.IntPart() == 500)

	base := "/api/v1/requisitions/" + created.ID

	// Submit and authorise.
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/submit", requestorToken, nil).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/authorise", approverToken, nil).Code)

	// A requestor may not disburse.
	rec = ts.do(t, http.MethodPost, base+"/disburse", requestorToken, map[string]any{
		"payment_method": "CASH",
		"denominations":  []map[string]any{{"value": "100", "count": 5}},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The cashier does.
	rec = ts.do(t, http.MethodPost, base+"/disburse", cashierToken, map[string]any{
		"payment_method": "CASH",
		"denominations":  []map[string]any{{"value": "100", "count": 5}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Receive, track expenses, submit change.
	rec = ts.do(t, http.MethodPost, base+"/receive", requestorToken, map[string]any{"signature": "sig-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, base+"/expenses", requestorToken, map[string]any{
		"expenses": []map[string]any{
			{"item_index": 0, "actual_amount": "290.00", "receipt_ref": "R1"},
			{"item_index": 1, "actual_amount": "190.00", "receipt_ref": "R2"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Mismatched change without the override flag is a 422.
	rec = ts.do(t, http.MethodPost, base+"/change", requestorToken, map[string]any{
		"change_amount": "15.00",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, base+"/change", requestorToken, map[string]any{
		"change_amount": "20.00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Confirm as cashier; the cycle completes.
	rec = ts.do(t, http.MethodPost, base+"/change/confirm", cashierToken, map[string]any{
		"confirmed_amount": "20.00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, base, requestorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var final model.Requisition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &final))
	assert.Equal(t, model.StatusCompleted, final.Status)

	// 2000 - 500 + 20 = 1520.
	rec = ts.do(t, http.MethodGet, "/api/v1/cashbook/balance", cashierToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, "1520.00", balance.Balance)
}

func TestInvalidTransitionMapsToConflict(t *testing.T) {
	ts := newTestServer(t)
	requestorToken := token(t, "user-req", auth.RoleRequestor)
	cashierToken := token(t, "user-cash", auth.RoleCashier)

	rec := ts.do(t, http.MethodPost, "/api/v1/requisitions", requestorToken, map[string]any{
		"purpose": "x",
		"items":   []map[string]string{{"description": "thing", "quantity": "1", "unit_price": "50"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Requisition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Disbursing a DRAFT requisition is a state-machine violation.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requisitions/%s/disburse", created.ID), cashierToken, map[string]any{
		"payment_method": "CASH",
		"denominations":  []map[string]any{{"value": "50", "count": 1}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestUnknownRequisitionIs404(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/requisitions/nope", token(t, "u", auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcileEndpointRoleGuard(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/cashbook/reconcile", token(t, "u", auth.RoleRequestor), map[string]any{
		"physical_count": "100.00",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/cashbook/reconcile", token(t, "u", auth.RoleAccountant), map[string]any{
		"physical_count": "0.00",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
