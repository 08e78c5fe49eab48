package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fintrax/pettyflow/internal/model"
)

// SaveClassificationLog persists an AI suggestion for audit, whether or
// not the suggested code resolved to a known account.
func (s *SQLiteStorage) SaveClassificationLog(ctx context.Context, log model.ClassificationLog) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	intentJSON, err := json.Marshal(log.Intent)
	if err != nil {
		return 0, fmt.Errorf("failed to encode intent: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_logs
			(requisition_id, line_item_index, suggested_account_id, suggested_code,
			 ai_intent, confidence, was_overridden, final_account_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.RequisitionID, log.LineItemIndex, nullable(log.SuggestedAccountID), log.SuggestedCode,
		string(intentJSON), log.Confidence, log.WasOverridden, nullable(log.FinalAccountID))
	if err != nil {
		return 0, fmt.Errorf("failed to save classification log: %w", err)
	}

	return result.LastInsertId()
}

// MarkClassificationOverridden records that a human picked a different
// account than suggested for the given line item.
func (s *SQLiteStorage) MarkClassificationOverridden(ctx context.Context, requisitionID string, lineItemIndex int, finalAccountID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(requisitionID, "requisition id"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE classification_logs
		SET was_overridden = CASE WHEN COALESCE(suggested_account_id, '') != ? THEN 1 ELSE 0 END,
		    final_account_id = ?
		WHERE requisition_id = ? AND line_item_index = ?`,
		finalAccountID, finalAccountID, requisitionID, lineItemIndex)
	if err != nil {
		return fmt.Errorf("failed to mark classification overridden: %w", err)
	}
	return nil
}

// ListClassificationLogs returns the audit trail for a requisition.
func (s *SQLiteStorage) ListClassificationLogs(ctx context.Context, requisitionID string) ([]model.ClassificationLog, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, requisition_id, line_item_index, COALESCE(suggested_account_id, ''),
		       suggested_code, ai_intent, confidence, was_overridden,
		       COALESCE(final_account_id, ''), created_at
		FROM classification_logs
		WHERE requisition_id = ?
		ORDER BY line_item_index, id`, requisitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query classification logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []model.ClassificationLog
	for rows.Next() {
		var log model.ClassificationLog
		var intentJSON string
		if err := rows.Scan(&log.ID, &log.RequisitionID, &log.LineItemIndex, &log.SuggestedAccountID,
			&log.SuggestedCode, &intentJSON, &log.Confidence, &log.WasOverridden,
			&log.FinalAccountID, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan classification log: %w", err)
		}
		if err := json.Unmarshal([]byte(intentJSON), &log.Intent); err != nil {
			return nil, fmt.Errorf("failed to decode log intent: %w", err)
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// nullable maps empty strings to NULL for optional foreign keys.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
