package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetPostedVoucherRef returns the external bookkeeping reference for a
// requisition, or empty if no voucher has been posted yet. Used to make
// voucher posting idempotent.
func (s *SQLiteStorage) GetPostedVoucherRef(ctx context.Context, requisitionID string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}

	var ref string
	err := s.db.QueryRowContext(ctx, `
		SELECT external_ref FROM posted_vouchers WHERE requisition_id = ?`,
		requisitionID).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get voucher ref: %w", err)
	}
	return ref, nil
}

// SavePostedVoucherRef records a successful voucher post. A repeat post
// for the same requisition keeps the first reference.
func (s *SQLiteStorage) SavePostedVoucherRef(ctx context.Context, requisitionID, externalRef string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(externalRef, "external ref"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO posted_vouchers (requisition_id, external_ref)
		VALUES (?, ?)`, requisitionID, externalRef)
	if err != nil {
		return fmt.Errorf("failed to save voucher ref: %w", err)
	}
	return nil
}
