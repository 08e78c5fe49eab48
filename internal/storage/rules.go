package storage

import (
	"context"
	"fmt"

	"github.com/fintrax/pettyflow/internal/model"
)

// ListRules returns accounting rules ordered by priority (highest first).
// When activeOnly is set, disabled rules are excluded.
func (s *SQLiteStorage) ListRules(ctx context.Context, activeOnly bool) ([]model.AccountingRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, pattern, is_regex, priority, confidence, account_id, is_active, created_at
		FROM accounting_rules`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY priority DESC, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.AccountingRule
	for rows.Next() {
		var rule model.AccountingRule
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Pattern, &rule.IsRegex, &rule.Priority,
			&rule.Confidence, &rule.AccountID, &rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// CreateRule inserts a new accounting rule and returns its id.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule model.AccountingRule) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(rule.Pattern, "pattern"); err != nil {
		return 0, err
	}
	if err := validateString(rule.AccountID, "account id"); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO accounting_rules (name, pattern, is_regex, priority, confidence, account_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.Pattern, rule.IsRegex, rule.Priority, rule.Confidence, rule.AccountID, rule.IsActive)
	if err != nil {
		return 0, fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get rule id: %w", err)
	}
	return int(id), nil
}
