package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fintrax/pettyflow/internal/model"
)

// LookupMemory returns the classification memory entry for a description
// signature, or nil on a miss.
func (s *SQLiteStorage) LookupMemory(ctx context.Context, signature string) (*model.MemoryEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(signature, "signature"); err != nil {
		return nil, err
	}

	var entry model.MemoryEntry
	var intentJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT description_signature, intent, system_account_id, confidence,
		       usage_count, accuracy_score, last_used_at, created_at
		FROM classification_memory
		WHERE description_signature = ?`, signature).
		Scan(&entry.Signature, &intentJSON, &entry.AccountID, &entry.Confidence,
			&entry.UsageCount, &entry.AccuracyScore, &entry.LastUsedAt, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup memory: %w", err)
	}

	if err := json.Unmarshal([]byte(intentJSON), &entry.Intent); err != nil {
		return nil, fmt.Errorf("failed to decode memory intent: %w", err)
	}

	return &entry, nil
}

// RecordMemory upserts a classification into memory. A new signature
// creates an entry with usage_count 1; an existing one has its usage count
// incremented atomically and intent/confidence refreshed.
func (s *SQLiteStorage) RecordMemory(ctx context.Context, signature string, intent model.Intent, accountID string, confidence float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(signature, "signature"); err != nil {
		return err
	}

	intentJSON, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode intent: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classification_memory
			(description_signature, intent, system_account_id, confidence, usage_count, last_used_at)
		VALUES (?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(description_signature) DO UPDATE SET
			intent = excluded.intent,
			system_account_id = excluded.system_account_id,
			confidence = excluded.confidence,
			usage_count = usage_count + 1,
			last_used_at = CURRENT_TIMESTAMP`,
		signature, string(intentJSON), accountID, confidence)
	if err != nil {
		return fmt.Errorf("failed to record memory: %w", err)
	}
	return nil
}

// MarkMemoryUsed atomically increments the usage counter on a cache hit.
// Lost updates here would only degrade analytics, but the single-statement
// increment avoids them entirely.
func (s *SQLiteStorage) MarkMemoryUsed(ctx context.Context, signature string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE classification_memory
		SET usage_count = usage_count + 1, last_used_at = CURRENT_TIMESTAMP
		WHERE description_signature = ?`, signature)
	if err != nil {
		return fmt.Errorf("failed to mark memory used: %w", err)
	}
	return nil
}
