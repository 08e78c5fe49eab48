package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/model"
)

// CreateDisbursement inserts the disbursement record created when cash is
// handed out against a requisition.
func (s *SQLiteStorage) CreateDisbursement(ctx context.Context, d model.Disbursement) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(d.ID, "disbursement id"); err != nil {
		return err
	}
	if err := validateString(d.RequisitionID, "requisition id"); err != nil {
		return err
	}

	denoms, err := encodeDenominations(d.Denominations)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disbursements (id, requisition_id, payment_method, denominations,
			total_prepared, proof_ref, disbursed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RequisitionID, d.PaymentMethod, denoms,
		d.TotalPrepared.String(), nullable(d.ProofRef), d.DisbursedBy)
	if err != nil {
		return fmt.Errorf("failed to create disbursement: %w", err)
	}
	return nil
}

// GetDisbursementByRequisition loads the disbursement for a requisition.
func (s *SQLiteStorage) GetDisbursementByRequisition(ctx context.Context, requisitionID string) (*model.Disbursement, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(requisitionID, "requisition id"); err != nil {
		return nil, err
	}

	var d model.Disbursement
	var denoms, returned, confirmed sql.NullString
	var totalPrepared string
	var actualChange, confirmedChange, discrepancy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, requisition_id, payment_method, denominations, total_prepared,
		       COALESCE(proof_ref, ''), COALESCE(receipt_signature, ''),
		       returned_denominations, actual_change_amount,
		       confirmed_denominations, confirmed_change_amount, discrepancy_amount,
		       disbursed_by, disbursed_at, updated_at
		FROM disbursements WHERE requisition_id = ?`, requisitionID).
		Scan(&d.ID, &d.RequisitionID, &d.PaymentMethod, &denoms, &totalPrepared,
			&d.ProofRef, &d.ReceiptSignature,
			&returned, &actualChange,
			&confirmed, &confirmedChange, &discrepancy,
			&d.DisbursedBy, &d.DisbursedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("disbursement for %s: %w", requisitionID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get disbursement: %w", err)
	}

	if d.TotalPrepared, err = decimal.NewFromString(totalPrepared); err != nil {
		return nil, fmt.Errorf("corrupt total_prepared: %w", err)
	}
	if d.Denominations, err = decodeDenominations(denoms); err != nil {
		return nil, err
	}
	if d.ReturnedDenominations, err = decodeDenominations(returned); err != nil {
		return nil, err
	}
	if d.ConfirmedDenominations, err = decodeDenominations(confirmed); err != nil {
		return nil, err
	}
	if actualChange.Valid {
		if d.ActualChangeAmount, err = decimal.NewFromString(actualChange.String); err != nil {
			return nil, fmt.Errorf("corrupt actual_change_amount: %w", err)
		}
		d.ChangeSubmitted = true
	}
	if confirmedChange.Valid {
		if d.ConfirmedChangeAmount, err = decimal.NewFromString(confirmedChange.String); err != nil {
			return nil, fmt.Errorf("corrupt confirmed_change_amount: %w", err)
		}
		d.ChangeConfirmed = true
	}
	if discrepancy.Valid {
		if d.DiscrepancyAmount, err = decimal.NewFromString(discrepancy.String); err != nil {
			return nil, fmt.Errorf("corrupt discrepancy_amount: %w", err)
		}
	}

	return &d, nil
}

// RecordReceiptSignature stores the requestor's acknowledgement token.
func (s *SQLiteStorage) RecordReceiptSignature(ctx context.Context, requisitionID, signature string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE disbursements SET receipt_signature = ?, updated_at = CURRENT_TIMESTAMP
		WHERE requisition_id = ?`, signature, requisitionID)
	if err != nil {
		return fmt.Errorf("failed to record receipt signature: %w", err)
	}
	return nil
}

// RecordSubmittedChange stores the requestor's provisional change count.
func (s *SQLiteStorage) RecordSubmittedChange(ctx context.Context, requisitionID string, denominations model.DenominationSet, amount decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	denoms, err := encodeDenominations(denominations)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE disbursements
		SET returned_denominations = ?, actual_change_amount = ?, updated_at = CURRENT_TIMESTAMP
		WHERE requisition_id = ?`, denoms, amount.String(), requisitionID)
	if err != nil {
		return fmt.Errorf("failed to record submitted change: %w", err)
	}
	return nil
}

// RecordConfirmedChange stores the cashier's authoritative count and the
// computed discrepancy, closing the disbursement record.
func (s *SQLiteStorage) RecordConfirmedChange(ctx context.Context, requisitionID string, denominations model.DenominationSet, amount, discrepancy decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	denoms, err := encodeDenominations(denominations)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE disbursements
		SET confirmed_denominations = ?, confirmed_change_amount = ?,
		    discrepancy_amount = ?, updated_at = CURRENT_TIMESTAMP
		WHERE requisition_id = ?`, denoms, amount.String(), discrepancy.String(), requisitionID)
	if err != nil {
		return fmt.Errorf("failed to record confirmed change: %w", err)
	}
	return nil
}

func encodeDenominations(set model.DenominationSet) (any, error) {
	if len(set) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to encode denominations: %w", err)
	}
	return string(encoded), nil
}

func decodeDenominations(value sql.NullString) (model.DenominationSet, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	var set model.DenominationSet
	if err := json.Unmarshal([]byte(value.String), &set); err != nil {
		return nil, fmt.Errorf("failed to decode denominations: %w", err)
	}
	return set, nil
}
