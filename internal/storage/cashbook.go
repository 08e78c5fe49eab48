package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/model"
)

// AppendCashbookEntry computes balance_after from the current tail of the
// ledger and inserts the new entry, all inside one transaction. The
// previous-balance read and the insert form a single atomic unit; if the
// tail moved between read and write the append fails with
// common.ErrLedgerConflict and must be retried by the writer.
func (s *SQLiteStorage) AppendCashbookEntry(ctx context.Context, entry model.CashbookEntry) (*model.CashbookEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(entry.AccountType, "account type"); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	prevID, prevBalance, err := s.lastEntryTx(ctx, tx, entry.AccountType)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	entry.BalanceAfter = prevBalance.Add(entry.Debit).Sub(entry.Credit)
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = "POSTED"
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO cashbook_entries
			(account_type, entry_date, description, entry_type, debit, credit,
			 balance_after, requisition_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.AccountType, entry.Date, entry.Description, entry.Type,
		entry.Debit.String(), entry.Credit.String(), entry.BalanceAfter.String(),
		nullable(entry.RequisitionID), entry.Status)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to insert cashbook entry: %w", err)
	}

	// Re-read the predecessor inside the same transaction; a different tail
	// means another writer interleaved and our computed balance is stale.
	newID, err := result.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to get entry id: %w", err)
	}
	var checkID int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(id), 0) FROM cashbook_entries
		WHERE account_type = ? AND id < ?`, entry.AccountType, newID).Scan(&checkID)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to verify ledger tail: %w", err)
	}
	if checkID != prevID {
		_ = tx.Rollback()
		return nil, fmt.Errorf("ledger %s tail moved from %d to %d: %w",
			entry.AccountType, prevID, checkID, common.ErrLedgerConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cashbook entry: %w", err)
	}

	entry.ID = newID
	return &entry, nil
}

// lastEntryTx returns the id and balance of the ledger tail, falling back
// to the configured opening baseline (or zero) for an empty ledger.
func (s *SQLiteStorage) lastEntryTx(ctx context.Context, tx *sql.Tx, accountType string) (int64, decimal.Decimal, error) {
	var id int64
	var balance string
	err := tx.QueryRowContext(ctx, `
		SELECT id, balance_after FROM cashbook_entries
		WHERE account_type = ?
		ORDER BY id DESC LIMIT 1`, accountType).Scan(&id, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		opening, baselineErr := s.baselineTx(ctx, tx, accountType)
		if baselineErr != nil {
			return 0, decimal.Zero, baselineErr
		}
		return 0, opening, nil
	}
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to read ledger tail: %w", err)
	}

	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("corrupt balance_after: %w", err)
	}
	return id, parsed, nil
}

func (s *SQLiteStorage) baselineTx(ctx context.Context, tx *sql.Tx, accountType string) (decimal.Decimal, error) {
	var opening string
	err := tx.QueryRowContext(ctx, `
		SELECT opening_balance FROM cashbook_baselines WHERE account_type = ?`,
		accountType).Scan(&opening)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read baseline: %w", err)
	}
	parsed, err := decimal.NewFromString(opening)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt opening_balance: %w", err)
	}
	return parsed, nil
}

// CurrentCashbookBalance returns the balance_after of the most recent
// entry, or the configured opening balance when the ledger is empty.
func (s *SQLiteStorage) CurrentCashbookBalance(ctx context.Context, accountType string) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, balance, err := s.lastEntryTx(ctx, tx, accountType)
	return balance, err
}

// ListCashbookEntries returns the ledger for an account type in append
// order, for audit. Prior entries are immutable and always readable.
func (s *SQLiteStorage) ListCashbookEntries(ctx context.Context, accountType string) ([]model.CashbookEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_type, entry_date, description, entry_type, debit, credit,
		       balance_after, COALESCE(requisition_id, ''), status, created_at
		FROM cashbook_entries
		WHERE account_type = ?
		ORDER BY id`, accountType)
	if err != nil {
		return nil, fmt.Errorf("failed to query cashbook: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.CashbookEntry
	for rows.Next() {
		var entry model.CashbookEntry
		var debit, credit, balance string
		if err := rows.Scan(&entry.ID, &entry.AccountType, &entry.Date, &entry.Description,
			&entry.Type, &debit, &credit, &balance, &entry.RequisitionID,
			&entry.Status, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cashbook entry: %w", err)
		}
		if entry.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("corrupt debit: %w", err)
		}
		if entry.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("corrupt credit: %w", err)
		}
		if entry.BalanceAfter, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("corrupt balance_after: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// SetCashbookBaseline records the opening balance effective from the given
// date, the only sanctioned way to reset the ledger's baseline.
func (s *SQLiteStorage) SetCashbookBaseline(ctx context.Context, accountType string, opening decimal.Decimal, openingDate time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(accountType, "account type"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cashbook_baselines (account_type, opening_balance, opening_date)
		VALUES (?, ?, ?)
		ON CONFLICT(account_type) DO UPDATE SET
			opening_balance = excluded.opening_balance,
			opening_date = excluded.opening_date`,
		accountType, opening.String(), openingDate)
	if err != nil {
		return fmt.Errorf("failed to set baseline: %w", err)
	}
	return nil
}

// GetCashbookBaseline returns the configured opening balance and date.
func (s *SQLiteStorage) GetCashbookBaseline(ctx context.Context, accountType string) (decimal.Decimal, time.Time, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, time.Time{}, err
	}

	var opening string
	var openingDate time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT opening_balance, opening_date FROM cashbook_baselines
		WHERE account_type = ?`, accountType).Scan(&opening, &openingDate)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, time.Time{}, nil
	}
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to get baseline: %w", err)
	}

	parsed, err := decimal.NewFromString(opening)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("corrupt opening_balance: %w", err)
	}
	return parsed, openingDate, nil
}
