package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/model"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrateSeedsChartAndRules(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, accounts)

	fuel, err := store.GetAccountByCode(ctx, "6002")
	require.NoError(t, err)
	assert.Equal(t, "acct-6002", fuel.ID)
	assert.Equal(t, model.AccountTypeExpense, fuel.Type)

	rules, err := store.ListRules(ctx, true)
	require.NoError(t, err)
	require.NotEmpty(t, rules)

	// Active rules come back in priority order, highest first.
	for i := 1; i < len(rules); i++ {
		assert.GreaterOrEqual(t, rules[i-1].Priority, rules[i].Priority)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := createTestStorage(t)
	require.NoError(t, store.Migrate(context.Background()))

	accounts, err := store.ListAccounts(context.Background())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, acct := range accounts {
		assert.False(t, seen[acct.Code], "duplicate account %s", acct.Code)
		seen[acct.Code] = true
	}
}

func TestGetAccountByCodeNotFound(t *testing.T) {
	store := createTestStorage(t)
	_, err := store.GetAccountByCode(context.Background(), "0000")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemoryUpsertAndUsageCount(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	signature := model.Signature("fuel for generator")

	// Miss returns nil without error.
	entry, err := store.LookupMemory(ctx, signature)
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, store.RecordMemory(ctx, signature, model.Intent{Category: "fuel"}, "acct-6002", 0.9))

	entry, err = store.LookupMemory(ctx, signature)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "acct-6002", entry.AccountID)
	assert.Equal(t, 1, entry.UsageCount)
	assert.True(t, entry.Eligible())

	// Re-recording the same signature updates in place and bumps usage.
	require.NoError(t, store.RecordMemory(ctx, signature, model.Intent{Category: "fuel"}, "acct-6005", 1.0))
	entry, err = store.LookupMemory(ctx, signature)
	require.NoError(t, err)
	assert.Equal(t, "acct-6005", entry.AccountID)
	assert.Equal(t, 2, entry.UsageCount)

	// Every lookup hit marks usage explicitly.
	require.NoError(t, store.MarkMemoryUsed(ctx, signature))
	require.NoError(t, store.MarkMemoryUsed(ctx, signature))
	entry, err = store.LookupMemory(ctx, signature)
	require.NoError(t, err)
	assert.Equal(t, 4, entry.UsageCount)
}

func TestMemoryLowConfidenceNotEligible(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	signature := model.Signature("assorted sundries")

	require.NoError(t, store.RecordMemory(ctx, signature, model.Intent{Category: "misc"}, "acct-6001", 0.8))
	entry, err := store.LookupMemory(ctx, signature)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.Eligible(), "0.8 is at, not above, the threshold")
}

func TestRequisitionRoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	requisition := model.Requisition{
		ID:          "req-1",
		RequestorID: "user-1",
		Purpose:     "supplies run",
		Type:        model.TypeExpense,
		Status:      model.StatusDraft,
		Items: []model.LineItem{
			{Index: 0, Description: "paper", Quantity: decimal.NewFromInt(10),
				UnitPrice: decimal.NewFromFloat(2.50), EstimatedAmount: decimal.NewFromInt(25)},
			{Index: 1, Description: "toner", Quantity: decimal.NewFromInt(1),
				UnitPrice: decimal.NewFromInt(75), EstimatedAmount: decimal.NewFromInt(75)},
		},
		EstimatedTotal: decimal.NewFromInt(100),
	}
	require.NoError(t, store.CreateRequisition(ctx, requisition))

	got, err := store.GetRequisition(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, got.Status)
	assert.Equal(t, model.TypeExpense, got.Type)
	require.Len(t, got.Items, 2)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.NewFromFloat(2.50)))
	assert.True(t, got.EstimatedTotal.Equal(decimal.NewFromInt(100)))
}

func TestGetRequisitionNotFound(t *testing.T) {
	store := createTestStorage(t)
	_, err := store.GetRequisition(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateRequisitionStatusGuarded(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateRequisition(ctx, model.Requisition{
		ID: "req-2", RequestorID: "user-1", Purpose: "x",
		Type: model.TypeExpense, Status: model.StatusDraft,
		Items: []model.LineItem{{Index: 0, Description: "thing",
			Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10),
			EstimatedAmount: decimal.NewFromInt(10)}},
		EstimatedTotal: decimal.NewFromInt(10),
	}))

	require.NoError(t, store.UpdateRequisitionStatus(ctx, "req-2", model.StatusDraft, model.StatusSubmitted))

	// A stale "from" status means someone else already moved it.
	err := store.UpdateRequisitionStatus(ctx, "req-2", model.StatusDraft, model.StatusSubmitted)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestUpdateLineItemActualRecomputesTotal(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateRequisition(ctx, model.Requisition{
		ID: "req-3", RequestorID: "user-1", Purpose: "x",
		Type: model.TypeExpense, Status: model.StatusReceived,
		Items: []model.LineItem{
			{Index: 0, Description: "a", Quantity: decimal.NewFromInt(1),
				UnitPrice: decimal.NewFromInt(50), EstimatedAmount: decimal.NewFromInt(50)},
			{Index: 1, Description: "b", Quantity: decimal.NewFromInt(1),
				UnitPrice: decimal.NewFromInt(50), EstimatedAmount: decimal.NewFromInt(50)},
		},
		EstimatedTotal: decimal.NewFromInt(100),
	}))

	require.NoError(t, store.UpdateLineItemActual(ctx, "req-3", 0, decimal.NewFromFloat(45.50), "RCPT-9"))

	got, err := store.GetRequisition(ctx, "req-3")
	require.NoError(t, err)
	assert.True(t, got.ActualTotal.Equal(decimal.NewFromFloat(45.50)), "actual total %s", got.ActualTotal)

	require.NoError(t, store.UpdateLineItemActual(ctx, "req-3", 1, decimal.NewFromInt(50), ""))
	got, err = store.GetRequisition(ctx, "req-3")
	require.NoError(t, err)
	assert.True(t, got.ActualTotal.Equal(decimal.NewFromFloat(95.50)))
}

func TestDisbursementRoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	disbursement := model.Disbursement{
		ID:            "disb-1",
		RequisitionID: "req-9",
		PaymentMethod: model.PaymentCash,
		Denominations: model.DenominationSet{
			{Value: decimal.NewFromInt(100), Count: 5},
		},
		TotalPrepared: decimal.NewFromInt(500),
		DisbursedBy:   "user-cash",
	}
	require.NoError(t, store.CreateDisbursement(ctx, disbursement))

	got, err := store.GetDisbursementByRequisition(ctx, "req-9")
	require.NoError(t, err)
	assert.Equal(t, "disb-1", got.ID)
	assert.False(t, got.ChangeSubmitted)
	assert.False(t, got.ChangeConfirmed)
	require.Len(t, got.Denominations, 1)
	assert.Equal(t, 5, got.Denominations[0].Count)

	require.NoError(t, store.RecordSubmittedChange(ctx, "req-9",
		model.DenominationSet{{Value: decimal.NewFromInt(20), Count: 1}}, decimal.NewFromInt(20)))
	require.NoError(t, store.RecordConfirmedChange(ctx, "req-9",
		model.DenominationSet{{Value: decimal.NewFromInt(20), Count: 1}},
		decimal.NewFromInt(20), decimal.Zero))

	got, err = store.GetDisbursementByRequisition(ctx, "req-9")
	require.NoError(t, err)
	assert.True(t, got.ChangeSubmitted)
	assert.True(t, got.ChangeConfirmed)
	assert.True(t, got.ActualChangeAmount.Equal(decimal.NewFromInt(20)))
	assert.True(t, got.ConfirmedChangeAmount.Equal(decimal.NewFromInt(20)))
}

func TestCashbookBaselineUsedForEmptyLedger(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SetCashbookBaseline(ctx, "petty_cash",
		decimal.NewFromInt(750), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	balance, err := store.CurrentCashbookBalance(ctx, "petty_cash")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(750)))

	// The first appended entry builds on the baseline.
	entry, err := store.AppendCashbookEntry(ctx, model.CashbookEntry{
		AccountType: "petty_cash",
		Description: "Disbursement",
		Type:        model.EntryDisbursement,
		Credit:      decimal.NewFromInt(200),
	})
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(550)))
}

func TestPostedVoucherIdempotency(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	ref, err := store.GetPostedVoucherRef(ctx, "req-v")
	require.NoError(t, err)
	assert.Empty(t, ref)

	require.NoError(t, store.SavePostedVoucherRef(ctx, "req-v", "PV-1001"))
	// A second save for the same requisition is ignored, not an error.
	require.NoError(t, store.SavePostedVoucherRef(ctx, "req-v", "PV-2002"))

	ref, err = store.GetPostedVoucherRef(ctx, "req-v")
	require.NoError(t, err)
	assert.Equal(t, "PV-1001", ref)
}

func TestClassificationLogOverride(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.SaveClassificationLog(ctx, model.ClassificationLog{
		RequisitionID:      "req-log",
		LineItemIndex:      0,
		SuggestedAccountID: "acct-6001",
		SuggestedCode:      "6001",
		Intent:             model.Intent{Category: "supplies"},
		Confidence:         0.82,
	})
	require.NoError(t, err)

	// Confirming the same account is not an override.
	require.NoError(t, store.MarkClassificationOverridden(ctx, "req-log", 0, "acct-6001"))
	logs, err := store.ListClassificationLogs(ctx, "req-log")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].WasOverridden)

	// Picking a different account is.
	require.NoError(t, store.MarkClassificationOverridden(ctx, "req-log", 0, "acct-6005"))
	logs, err = store.ListClassificationLogs(ctx, "req-log")
	require.NoError(t, err)
	assert.True(t, logs[0].WasOverridden)
	assert.Equal(t, "acct-6005", logs[0].FinalAccountID)
}
