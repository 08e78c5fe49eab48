// Package disburse implements the cash lifecycle of a requisition: from
// authorization through disbursement, receipt acknowledgement, expense
// tracking, change submission, change confirmation and ledger posting.
package disburse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrax/pettyflow/internal/auth"
	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/ledger"
	"github.com/fintrax/pettyflow/internal/metrics"
	"github.com/fintrax/pettyflow/internal/model"
	"github.com/fintrax/pettyflow/internal/storage"
)

// Service drives the disbursement/reconciliation state machine. All guard
// violations are rejected before any persistence.
type Service struct {
	store    *storage.SQLiteStorage
	cashbook *ledger.Cashbook
	logger   *slog.Logger
}

// NewService creates the lifecycle service.
func NewService(store *storage.SQLiteStorage, cashbook *ledger.Cashbook, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		cashbook: cashbook,
		logger:   logger,
	}
}

// DisburseRequest is the cashier's preparation of cash (or a non-cash
// transfer) against an authorized requisition.
type DisburseRequest struct {
	Denominations  model.DenominationSet
	TransferAmount decimal.Decimal
	ProofRef       string
	PaymentMethod  model.PaymentMethod
	ConfirmExcess  bool
}

// Disburse moves AUTHORISED → DISBURSED. Preparing less than the estimated
// total is rejected outright; preparing more requires explicit operator
// confirmation since the excess must later come back as change.
func (s *Service) Disburse(ctx context.Context, actor auth.Actor, requisitionID string, req DisburseRequest) (*model.Disbursement, error) {
	if !auth.CanDisburse(actor.Role) {
		return nil, fmt.Errorf("role %s may not disburse: %w", actor.Role, common.ErrForbidden)
	}

	requisition, err := s.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if requisition.Status != model.StatusAuthorised {
		return nil, fmt.Errorf("requisition %s is %s, not AUTHORISED: %w",
			requisitionID, requisition.Status, common.ErrInvalidTransition)
	}

	var totalPrepared decimal.Decimal
	switch req.PaymentMethod {
	case model.PaymentCash:
		if err := req.Denominations.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		if len(req.Denominations) == 0 {
			return nil, fmt.Errorf("%w: cash disbursement requires denominations", common.ErrValidation)
		}
		totalPrepared = req.Denominations.Total()
	case model.PaymentTransfer:
		if !req.TransferAmount.IsPositive() {
			return nil, fmt.Errorf("%w: transfer requires a positive amount", common.ErrValidation)
		}
		if req.ProofRef == "" {
			return nil, fmt.Errorf("%w: transfer requires a proof reference", common.ErrValidation)
		}
		totalPrepared = req.TransferAmount
	default:
		return nil, fmt.Errorf("%w: unknown payment method %q", common.ErrValidation, req.PaymentMethod)
	}

	if totalPrepared.LessThan(requisition.EstimatedTotal) {
		return nil, common.NewUserError("insufficient funds prepared",
			fmt.Errorf("prepared %s against estimate %s: %w",
				totalPrepared, requisition.EstimatedTotal, common.ErrInsufficientPrepared))
	}
	excess := totalPrepared.Sub(requisition.EstimatedTotal)
	if excess.GreaterThan(model.CurrencyTolerance) && !req.ConfirmExcess {
		return nil, common.NewUserError("excess preparation requires confirmation",
			fmt.Errorf("prepared %s exceeds estimate %s: %w",
				totalPrepared, requisition.EstimatedTotal, common.ErrExcessUnconfirmed))
	}

	disbursement := model.Disbursement{
		ID:            uuid.NewString(),
		RequisitionID: requisitionID,
		PaymentMethod: req.PaymentMethod,
		Denominations: req.Denominations,
		TotalPrepared: totalPrepared,
		ProofRef:      req.ProofRef,
		DisbursedBy:   actor.ID,
	}
	if err := s.store.CreateDisbursement(ctx, disbursement); err != nil {
		return nil, err
	}

	if err := s.store.UpdateRequisitionStatus(ctx, requisitionID, model.StatusAuthorised, model.StatusDisbursed); err != nil {
		return nil, err
	}

	if _, err := s.cashbook.AppendEntry(ctx, model.CashbookEntry{
		AccountType:   ledger.DefaultAccountType,
		Date:          time.Now().UTC(),
		Description:   fmt.Sprintf("Disbursement for requisition %s", requisitionID),
		Type:          model.EntryDisbursement,
		Credit:        totalPrepared,
		Debit:         decimal.Zero,
		RequisitionID: requisitionID,
	}); err != nil {
		return nil, err
	}
	metrics.CashbookEntriesTotal.WithLabelValues(string(model.EntryDisbursement)).Inc()

	s.logger.Info("requisition disbursed",
		"requisition_id", requisitionID,
		"total_prepared", totalPrepared,
		"payment_method", req.PaymentMethod,
		"disbursed_by", actor.ID)

	return &disbursement, nil
}

// AcknowledgeReceipt moves DISBURSED → RECEIVED. A digital signature token
// from the requestor attests physical receipt; there is no monetary
// effect, but expense tracking is not allowed before this step.
func (s *Service) AcknowledgeReceipt(ctx context.Context, actor auth.Actor, requisitionID, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: receipt signature is required", common.ErrValidation)
	}

	requisition, err := s.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return err
	}
	if requisition.RequestorID != actor.ID && actor.Role != auth.RoleAdmin {
		return fmt.Errorf("only the requestor may acknowledge receipt: %w", common.ErrForbidden)
	}
	if requisition.Status != model.StatusDisbursed {
		return fmt.Errorf("requisition %s is %s, not DISBURSED: %w",
			requisitionID, requisition.Status, common.ErrInvalidTransition)
	}

	if err := s.store.RecordReceiptSignature(ctx, requisitionID, signature); err != nil {
		return err
	}
	if err := s.store.UpdateRequisitionStatus(ctx, requisitionID, model.StatusDisbursed, model.StatusReceived); err != nil {
		return err
	}

	s.logger.Info("cash receipt acknowledged",
		"requisition_id", requisitionID,
		"requestor_id", actor.ID)
	return nil
}

// ExpenseRecord is one tracked actual spend against a line item.
type ExpenseRecord struct {
	ReceiptRef   string
	ActualAmount decimal.Decimal
	ItemIndex    int
}

// TrackExpenses records actual spend per line item while the requisition
// is RECEIVED. It does not change status; actual_total is refreshed from
// the items.
func (s *Service) TrackExpenses(ctx context.Context, actor auth.Actor, requisitionID string, records []ExpenseRecord) (*model.Requisition, error) {
	requisition, err := s.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if requisition.RequestorID != actor.ID && actor.Role != auth.RoleAdmin {
		return nil, fmt.Errorf("only the requestor may track expenses: %w", common.ErrForbidden)
	}
	if requisition.Status != model.StatusReceived {
		return nil, fmt.Errorf("requisition %s is %s, not RECEIVED: %w",
			requisitionID, requisition.Status, common.ErrInvalidTransition)
	}

	for _, record := range records {
		if record.ActualAmount.IsNegative() {
			return nil, fmt.Errorf("%w: actual amount must not be negative", common.ErrValidation)
		}
		if err := s.store.UpdateLineItemActual(ctx, requisitionID, record.ItemIndex, record.ActualAmount, record.ReceiptRef); err != nil {
			return nil, err
		}
	}

	return s.store.GetRequisition(ctx, requisitionID)
}

// SubmitChange moves RECEIVED → CHANGE_SUBMITTED. The requestor's count is
// provisional pending cashier confirmation: a mismatch against the
// expected change is a soft guard that can be overridden with
// confirmMismatch, never a hard block.
func (s *Service) SubmitChange(ctx context.Context, actor auth.Actor, requisitionID string, denominations model.DenominationSet, changeAmount decimal.Decimal, confirmMismatch bool) (*model.Disbursement, error) {
	requisition, err := s.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if requisition.RequestorID != actor.ID && actor.Role != auth.RoleAdmin {
		return nil, fmt.Errorf("only the requestor may submit change: %w", common.ErrForbidden)
	}
	if requisition.Status != model.StatusReceived {
		return nil, fmt.Errorf("requisition %s is %s, not RECEIVED: %w",
			requisitionID, requisition.Status, common.ErrInvalidTransition)
	}
	if err := denominations.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if changeAmount.IsNegative() {
		return nil, fmt.Errorf("%w: change amount must not be negative", common.ErrValidation)
	}
	if len(denominations) > 0 && !model.AmountsEqual(denominations.Total(), changeAmount) {
		return nil, fmt.Errorf("%w: denominations total %s, not %s",
			common.ErrValidation, denominations.Total(), changeAmount)
	}

	disbursement, err := s.store.GetDisbursementByRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}

	expected := disbursement.TotalPrepared.Sub(requisition.ActualTotal)
	if !model.AmountsEqual(changeAmount, expected) {
		if !confirmMismatch {
			return nil, common.NewUserError("cash count variance detected",
				fmt.Errorf("submitted change %s differs from expected %s: %w",
					changeAmount, expected, common.ErrChangeMismatch))
		}
		s.logger.Warn("change submitted with mismatch override",
			"requisition_id", requisitionID,
			"submitted", changeAmount,
			"expected", expected)
	}

	if err := s.store.RecordSubmittedChange(ctx, requisitionID, denominations, changeAmount); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRequisitionStatus(ctx, requisitionID, model.StatusReceived, model.StatusChangeSubmitted); err != nil {
		return nil, err
	}

	s.logger.Info("change submitted",
		"requisition_id", requisitionID,
		"change_amount", changeAmount,
		"expected_change", expected)

	return s.store.GetDisbursementByRequisition(ctx, requisitionID)
}

// ConfirmChange moves CHANGE_SUBMITTED → COMPLETED. The cashier's
// independent count is authoritative: a RETURN entry restores the expected
// change to the float, and a discrepancy beyond tolerance is absorbed by
// exactly one ADJUSTMENT entry so the running balance lands on the
// physically counted cash. Once COMPLETED no further mutation of the
// disbursement is permitted.
func (s *Service) ConfirmChange(ctx context.Context, actor auth.Actor, requisitionID string, denominations model.DenominationSet, confirmedAmount decimal.Decimal) (*model.Disbursement, error) {
	if !auth.CanConfirmChange(actor.Role) {
		return nil, fmt.Errorf("role %s may not confirm change: %w", actor.Role, common.ErrForbidden)
	}

	requisition, err := s.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if requisition.Status != model.StatusChangeSubmitted {
		return nil, fmt.Errorf("requisition %s is %s, not CHANGE_SUBMITTED: %w",
			requisitionID, requisition.Status, common.ErrInvalidTransition)
	}
	if err := denominations.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if confirmedAmount.IsNegative() {
		return nil, fmt.Errorf("%w: confirmed amount must not be negative", common.ErrValidation)
	}
	if len(denominations) > 0 && !model.AmountsEqual(denominations.Total(), confirmedAmount) {
		return nil, fmt.Errorf("%w: denominations total %s, not %s",
			common.ErrValidation, denominations.Total(), confirmedAmount)
	}

	disbursement, err := s.store.GetDisbursementByRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}

	// Money unaccounted for: lost if positive, found if negative.
	expected := disbursement.TotalPrepared.Sub(requisition.ActualTotal)
	discrepancy := expected.Sub(confirmedAmount)

	if err := s.store.RecordConfirmedChange(ctx, requisitionID, denominations, confirmedAmount, discrepancy); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRequisitionStatus(ctx, requisitionID, model.StatusChangeSubmitted, model.StatusCompleted); err != nil {
		return nil, err
	}

	if _, err := s.cashbook.AppendEntry(ctx, model.CashbookEntry{
		AccountType:   ledger.DefaultAccountType,
		Date:          time.Now().UTC(),
		Description:   fmt.Sprintf("Change returned for requisition %s", requisitionID),
		Type:          model.EntryReturn,
		Debit:         expected,
		Credit:        decimal.Zero,
		RequisitionID: requisitionID,
	}); err != nil {
		return nil, err
	}
	metrics.CashbookEntriesTotal.WithLabelValues(string(model.EntryReturn)).Inc()

	if discrepancy.Abs().GreaterThan(model.CurrencyTolerance) {
		debit, credit := decimal.Zero, decimal.Zero
		if discrepancy.IsPositive() {
			credit = discrepancy
		} else {
			debit = discrepancy.Neg()
		}
		if _, err := s.cashbook.AppendEntry(ctx, model.CashbookEntry{
			AccountType: ledger.DefaultAccountType,
			Date:        time.Now().UTC(),
			Description: fmt.Sprintf("Change discrepancy %s for requisition %s",
				discrepancy.StringFixed(2), requisitionID),
			Type:          model.EntryAdjustment,
			Debit:         debit,
			Credit:        credit,
			RequisitionID: requisitionID,
		}); err != nil {
			return nil, err
		}
		metrics.CashbookEntriesTotal.WithLabelValues(string(model.EntryAdjustment)).Inc()
		metrics.DiscrepanciesTotal.Inc()

		s.logger.Warn("change discrepancy detected",
			"requisition_id", requisitionID,
			"expected_change", expected,
			"confirmed_change", confirmedAmount,
			"discrepancy", discrepancy)
	}

	s.logger.Info("change confirmed, requisition completed",
		"requisition_id", requisitionID,
		"confirmed_change", confirmedAmount,
		"confirmed_by", actor.ID)

	return s.store.GetDisbursementByRequisition(ctx, requisitionID)
}

// Reject is terminal and only legal before any cash moves; no ledger
// entries are emitted.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, requisitionID, reason string) error {
	if !auth.CanReject(actor.Role) {
		return fmt.Errorf("role %s may not reject: %w", actor.Role, common.ErrForbidden)
	}

	requisition, err := s.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return err
	}
	if !model.CanTransition(requisition.Status, model.StatusRejected) {
		return fmt.Errorf("requisition %s is %s and cannot be rejected: %w",
			requisitionID, requisition.Status, common.ErrInvalidTransition)
	}

	if err := s.store.UpdateRequisitionStatus(ctx, requisitionID, requisition.Status, model.StatusRejected); err != nil {
		return err
	}

	s.logger.Info("requisition rejected",
		"requisition_id", requisitionID,
		"rejected_by", actor.ID,
		"reason", reason)
	return nil
}
