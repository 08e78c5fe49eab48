package voucher

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/model"
	"github.com/fintrax/pettyflow/internal/storage"
	"github.com/fintrax/pettyflow/internal/testutil"
)

func fastPoster(t *testing.T, store *storage.SQLiteStorage, baseURL string) *Poster {
	t.Helper()
	poster := NewPoster(store, Config{BaseURL: baseURL, Token: "test-token"}, slog.Default())
	poster.retryOpts = common.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond}
	return poster
}

func receivedRequisition(t *testing.T, store *storage.SQLiteStorage, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateRequisition(ctx, model.Requisition{
		ID: id, RequestorID: "user-1", Purpose: "site expenses",
		Type: model.TypeExpense, Status: model.StatusReceived,
		Items: []model.LineItem{{Index: 0, Description: "fuel",
			Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100),
			EstimatedAmount: decimal.NewFromInt(100)}},
		EstimatedTotal: decimal.NewFromInt(100),
	}))
}

func TestPostSuccess(t *testing.T) {
	store := testutil.SetupTestDB(t)
	receivedRequisition(t, store, "req-v1")

	var gotAuth, gotIdemKey string
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotAuth = r.Header.Get("Authorization")
		gotIdemKey = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ref":"PV-1001"}`))
	}))
	defer srv.Close()

	poster := fastPoster(t, store, srv.URL)
	ref, err := poster.Post(context.Background(), "req-v1")
	require.NoError(t, err)
	assert.Equal(t, "PV-1001", ref)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "req-v1", gotIdemKey)
	assert.Equal(t, 1, calls)
}

func TestPostIdempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	receivedRequisition(t, store, "req-v2")

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"ref":"PV-2002"}`))
	}))
	defer srv.Close()

	poster := fastPoster(t, store, srv.URL)
	first, err := poster.Post(context.Background(), "req-v2")
	require.NoError(t, err)

	// The second post short-circuits on the saved reference.
	second, err := poster.Post(context.Background(), "req-v2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestPostRetriesServerErrors(t *testing.T) {
	store := testutil.SetupTestDB(t)
	receivedRequisition(t, store, "req-v3")

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ref":"PV-3003"}`))
	}))
	defer srv.Close()

	poster := fastPoster(t, store, srv.URL)
	ref, err := poster.Post(context.Background(), "req-v3")
	require.NoError(t, err)
	assert.Equal(t, "PV-3003", ref)
	assert.Equal(t, 2, calls)
}

func TestPostStatusGuard(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.CreateRequisition(ctx, model.Requisition{
		ID: "req-v4", RequestorID: "user-1", Purpose: "draft",
		Type: model.TypeExpense, Status: model.StatusDraft,
		Items: []model.LineItem{{Index: 0, Description: "x",
			Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10),
			EstimatedAmount: decimal.NewFromInt(10)}},
		EstimatedTotal: decimal.NewFromInt(10),
	}))

	poster := fastPoster(t, store, "http://unreachable.invalid")
	_, err := poster.Post(ctx, "req-v4")
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestPostMissingRef(t *testing.T) {
	store := testutil.SetupTestDB(t)
	receivedRequisition(t, store, "req-v5")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	poster := fastPoster(t, store, srv.URL)
	_, err := poster.Post(context.Background(), "req-v5")
	require.Error(t, err)
}
