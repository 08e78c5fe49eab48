package engine

import (
	"context"

	"github.com/fintrax/pettyflow/internal/llm"
	"github.com/fintrax/pettyflow/internal/model"
)

// AIClassifier defines the contract for the AI fallback step of the
// pipeline.
type AIClassifier interface {
	Classify(ctx context.Context, description string, amount string, accounts []model.Account) (llm.ClassificationResponse, error)
}

// Store is the persistence the orchestrator needs: read-only account and
// rule sets, classification memory, and the audit log.
type Store interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListRules(ctx context.Context, activeOnly bool) ([]model.AccountingRule, error)
	LookupMemory(ctx context.Context, signature string) (*model.MemoryEntry, error)
	RecordMemory(ctx context.Context, signature string, intent model.Intent, accountID string, confidence float64) error
	MarkMemoryUsed(ctx context.Context, signature string) error
	SaveClassificationLog(ctx context.Context, log model.ClassificationLog) (int64, error)
	MarkClassificationOverridden(ctx context.Context, requisitionID string, lineItemIndex int, finalAccountID string) error
	UpdateLineItemAccount(ctx context.Context, requisitionID string, index int, accountID string) error
}
