package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/model"
)

// ListAccounts returns all active chart-of-accounts entries.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, type, is_active, created_at
		FROM accounts
		WHERE is_active = 1
		ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var acct model.Account
		if err := rows.Scan(&acct.ID, &acct.Code, &acct.Name, &acct.Type, &acct.IsActive, &acct.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

// GetAccountByCode looks up an account by its chart code. Returns
// common.ErrNotFound for unknown codes.
func (s *SQLiteStorage) GetAccountByCode(ctx context.Context, code string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(code, "code"); err != nil {
		return nil, err
	}

	var acct model.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, type, is_active, created_at
		FROM accounts
		WHERE code = ?`, code).
		Scan(&acct.ID, &acct.Code, &acct.Name, &acct.Type, &acct.IsActive, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", code, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &acct, nil
}

// CreateAccount inserts a chart-of-accounts entry.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, acct model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(acct.ID, "account id"); err != nil {
		return err
	}
	if err := validateString(acct.Code, "account code"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, code, name, type, is_active)
		VALUES (?, ?, ?, ?, ?)`,
		acct.ID, acct.Code, acct.Name, acct.Type, acct.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}
