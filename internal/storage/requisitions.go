package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/model"
)

// CreateRequisition inserts a requisition with its line items.
func (s *SQLiteStorage) CreateRequisition(ctx context.Context, req model.Requisition) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(req.ID, "requisition id"); err != nil {
		return err
	}
	if err := validateString(req.RequestorID, "requestor id"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO requisitions (id, requestor_id, purpose, type, status, estimated_total, actual_total)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.RequestorID, req.Purpose, req.Type, req.Status,
		req.EstimatedTotal.String(), req.ActualTotal.String())
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert requisition: %w", err)
	}

	for _, item := range req.Items {
		if err := insertLineItem(ctx, tx, req.ID, item); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func insertLineItem(ctx context.Context, tx *sql.Tx, requisitionID string, item model.LineItem) error {
	var actual any
	if item.HasActual {
		actual = item.ActualAmount.String()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO line_items (requisition_id, idx, description, quantity, unit_price,
			estimated_amount, actual_amount, receipt_ref, account_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		requisitionID, item.Index, item.Description, item.Quantity.String(), item.UnitPrice.String(),
		item.EstimatedAmount.String(), actual, nullable(item.ReceiptRef), nullable(item.AccountID))
	if err != nil {
		return fmt.Errorf("failed to insert line item %d: %w", item.Index, err)
	}
	return nil
}

// GetRequisition loads a requisition with its line items. Returns
// common.ErrNotFound for unknown ids.
func (s *SQLiteStorage) GetRequisition(ctx context.Context, id string) (*model.Requisition, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "requisition id"); err != nil {
		return nil, err
	}

	var req model.Requisition
	var estimated, actual string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, requestor_id, COALESCE(purpose, ''), type, status, estimated_total, actual_total,
		       created_at, updated_at
		FROM requisitions WHERE id = ?`, id).
		Scan(&req.ID, &req.RequestorID, &req.Purpose, &req.Type, &req.Status,
			&estimated, &actual, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("requisition %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get requisition: %w", err)
	}

	if req.EstimatedTotal, err = decimal.NewFromString(estimated); err != nil {
		return nil, fmt.Errorf("corrupt estimated_total: %w", err)
	}
	if req.ActualTotal, err = decimal.NewFromString(actual); err != nil {
		return nil, fmt.Errorf("corrupt actual_total: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, description, quantity, unit_price, estimated_amount,
		       actual_amount, COALESCE(receipt_ref, ''), COALESCE(account_id, '')
		FROM line_items WHERE requisition_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item model.LineItem
		var quantity, unitPrice, estimatedAmount string
		var actualAmount sql.NullString
		if err := rows.Scan(&item.Index, &item.Description, &quantity, &unitPrice,
			&estimatedAmount, &actualAmount, &item.ReceiptRef, &item.AccountID); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		if item.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("corrupt quantity: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("corrupt unit_price: %w", err)
		}
		if item.EstimatedAmount, err = decimal.NewFromString(estimatedAmount); err != nil {
			return nil, fmt.Errorf("corrupt estimated_amount: %w", err)
		}
		if actualAmount.Valid {
			if item.ActualAmount, err = decimal.NewFromString(actualAmount.String); err != nil {
				return nil, fmt.Errorf("corrupt actual_amount: %w", err)
			}
			item.HasActual = true
		}
		req.Items = append(req.Items, item)
	}

	return &req, rows.Err()
}

// UpdateRequisitionStatus moves a requisition to a new status, guarding at
// the storage layer that the recorded status is still the expected one.
func (s *SQLiteStorage) UpdateRequisitionStatus(ctx context.Context, id string, from, to model.RequisitionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE requisitions SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("requisition %s is no longer %s: %w", id, from, common.ErrInvalidTransition)
	}
	return nil
}

// UpdateLineItemActual records the tracked spend for one line item and
// refreshes the requisition's actual total.
func (s *SQLiteStorage) UpdateLineItemActual(ctx context.Context, requisitionID string, index int, actualAmount decimal.Decimal, receiptRef string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE line_items SET actual_amount = ?, receipt_ref = ?
		WHERE requisition_id = ? AND idx = ?`,
		actualAmount.String(), nullable(receiptRef), requisitionID, index)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to update line item: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("line item %d of %s: %w", index, requisitionID, common.ErrNotFound)
	}

	// Recompute actual_total from the items inside the same transaction.
	_, err = tx.ExecContext(ctx, `
		UPDATE requisitions SET
			actual_total = (
				SELECT COALESCE(SUM(CAST(actual_amount AS REAL)), 0)
				FROM line_items
				WHERE requisition_id = ? AND actual_amount IS NOT NULL
			),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, requisitionID, requisitionID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to refresh actual total: %w", err)
	}

	return tx.Commit()
}

// UpdateLineItemAccount stores the final account assignment for an item.
func (s *SQLiteStorage) UpdateLineItemAccount(ctx context.Context, requisitionID string, index int, accountID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE line_items SET account_id = ?
		WHERE requisition_id = ? AND idx = ?`,
		nullable(accountID), requisitionID, index)
	if err != nil {
		return fmt.Errorf("failed to update line item account: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("line item %d of %s: %w", index, requisitionID, common.ErrNotFound)
	}
	return nil
}
