// Package engine orchestrates the per-line-item classification pipeline:
// rule matcher, then classification memory, then the AI classifier.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/metrics"
	"github.com/fintrax/pettyflow/internal/model"
	"github.com/fintrax/pettyflow/internal/rules"
)

// Item is one line item to classify. ID is round-tripped unchanged into
// the matching result.
type Item struct {
	ID          string
	Description string
	Amount      string
	Index       int
}

// Config holds configuration options for the classification engine.
type Config struct {
	MaxWorkers int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MaxWorkers: 5}
}

// Engine runs the classification pipeline. Rule and account sets are
// loaded once per batch and shared read-only between items.
type Engine struct {
	store      Store
	classifier AIClassifier
	logger     *slog.Logger
	maxWorkers int
}

// New creates a classification engine with default configuration.
func New(store Store, classifier AIClassifier, logger *slog.Logger) *Engine {
	return NewWithConfig(store, classifier, logger, DefaultConfig())
}

// NewWithConfig creates a classification engine with custom configuration.
func NewWithConfig(store Store, classifier AIClassifier, logger *slog.Logger, cfg Config) *Engine {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}
	return &Engine{
		store:      store,
		classifier: classifier,
		logger:     logger,
		maxWorkers: cfg.MaxWorkers,
	}
}

// ClassifyBatch classifies every item in input order. Items are processed
// concurrently but results preserve input order 1:1, and an AI failure on
// one item never aborts its siblings: a batch of N items always yields N
// results.
func (e *Engine) ClassifyBatch(ctx context.Context, requisitionID string, items []Item) ([]model.ClassificationResult, error) {
	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	ruleSet, err := e.store.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	matcher := rules.NewMatcher(ruleSet)
	accountsByID := make(map[string]model.Account, len(accounts))
	accountsByCode := make(map[string]model.Account, len(accounts))
	for _, acct := range accounts {
		accountsByID[acct.ID] = acct
		accountsByCode[acct.Code] = acct
	}

	results := make([]model.ClassificationResult, len(items))

	sem := make(chan struct{}, e.maxWorkers)
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, item Item) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = failureResult(item, ctx.Err())
				return
			}

			results[idx] = e.classifyItem(ctx, requisitionID, item, matcher, accounts, accountsByID, accountsByCode)
		}(i, item)
	}
	wg.Wait()

	for _, result := range results {
		metrics.ClassificationsTotal.WithLabelValues(string(result.Method)).Inc()
	}

	return results, nil
}

// ClassifySingle classifies one description outside any requisition.
func (e *Engine) ClassifySingle(ctx context.Context, description, amount string) (model.ClassificationResult, error) {
	results, err := e.ClassifyBatch(ctx, "", []Item{{ID: "single", Description: description, Amount: amount}})
	if err != nil {
		return model.ClassificationResult{}, err
	}
	return results[0], nil
}

// classifyItem runs the strict rule → memory → AI order for one item.
func (e *Engine) classifyItem(
	ctx context.Context,
	requisitionID string,
	item Item,
	matcher *rules.Matcher,
	accounts []model.Account,
	accountsByID map[string]model.Account,
	accountsByCode map[string]model.Account,
) model.ClassificationResult {
	// 1. Rules are authoritative regardless of AI confidence.
	if match := matcher.Match(item.Description); match != nil {
		acct, ok := accountsByID[match.AccountID]
		code := ""
		if ok {
			code = acct.Code
		}
		e.logger.Debug("line item matched rule",
			"item_id", item.ID,
			"rule", match.Rule.Name,
			"account_code", code)
		return model.ClassificationResult{
			ItemID:      item.ID,
			AccountID:   match.AccountID,
			AccountCode: code,
			Method:      model.MethodRule,
			Confidence:  match.Confidence(),
			Reasoning:   fmt.Sprintf("matched rule %q", match.Rule.Name),
		}
	}

	// 2. Classification memory; only high-confidence entries short-circuit.
	signature := model.Signature(item.Description)
	entry, err := e.store.LookupMemory(ctx, signature)
	if err != nil {
		e.logger.Warn("memory lookup failed", "item_id", item.ID, "error", err)
	} else if entry != nil && entry.Eligible() {
		if err := e.store.MarkMemoryUsed(ctx, signature); err != nil {
			e.logger.Warn("failed to mark memory used", "signature", signature, "error", err)
		}
		acct, ok := accountsByID[entry.AccountID]
		code := ""
		if ok {
			code = acct.Code
		}
		e.logger.Debug("line item served from memory",
			"item_id", item.ID,
			"signature", signature,
			"confidence", entry.Confidence)
		return model.ClassificationResult{
			ItemID:      item.ID,
			AccountID:   entry.AccountID,
			AccountCode: code,
			Method:      model.MethodCache,
			Confidence:  entry.Confidence,
			Intent:      entry.Intent,
			Reasoning:   "previously confirmed classification",
		}
	}

	// 3. AI fallback. Failure is isolated to this item.
	response, err := e.classifier.Classify(ctx, item.Description, item.Amount, accounts)
	if err != nil {
		return failureResult(item, err)
	}

	// Map the suggested code to an internal account if one exists; the log
	// row is persisted either way.
	accountID := ""
	if acct, ok := accountsByCode[response.SuggestedCode]; ok {
		accountID = acct.ID
	}

	if requisitionID != "" {
		if _, err := e.store.SaveClassificationLog(ctx, model.ClassificationLog{
			RequisitionID:      requisitionID,
			LineItemIndex:      item.Index,
			SuggestedAccountID: accountID,
			SuggestedCode:      response.SuggestedCode,
			Intent:             response.Intent,
			Confidence:         response.Confidence,
		}); err != nil {
			e.logger.Warn("failed to save classification log", "item_id", item.ID, "error", err)
		}
	}

	if accountID != "" {
		if err := e.store.RecordMemory(ctx, signature, response.Intent, accountID, response.Confidence); err != nil {
			e.logger.Warn("failed to record memory", "signature", signature, "error", err)
		}
	}

	return model.ClassificationResult{
		ItemID:      item.ID,
		AccountID:   accountID,
		AccountCode: response.SuggestedCode,
		Method:      model.MethodAI,
		Confidence:  response.Confidence,
		Intent:      response.Intent,
		Reasoning:   response.Reasoning,
	}
}

// ConfirmAccount records a human's final account choice for a line item,
// marking the prior suggestion overridden when it differs, and feeding the
// confirmation back into memory at full confidence.
func (e *Engine) ConfirmAccount(ctx context.Context, requisitionID string, itemIndex int, description, accountID string) error {
	if err := e.store.UpdateLineItemAccount(ctx, requisitionID, itemIndex, accountID); err != nil {
		return err
	}
	if err := e.store.MarkClassificationOverridden(ctx, requisitionID, itemIndex, accountID); err != nil {
		return err
	}

	signature := model.Signature(description)
	if err := e.store.RecordMemory(ctx, signature, model.Intent{Category: "confirmed"}, accountID, 1.0); err != nil {
		e.logger.Warn("failed to record confirmed memory", "signature", signature, "error", err)
	}
	return nil
}

// failureResult maps an item-level failure to its result, distinguishing a
// missing credential from an AI error so callers can fall back to manual
// selection.
func failureResult(item Item, err error) model.ClassificationResult {
	method := model.MethodAIError
	reason := "AI classification unavailable"
	if errors.Is(err, common.ErrNoAPIKey) {
		method = model.MethodErrorNoKey
		reason = "no AI API credential configured"
	}
	return model.ClassificationResult{
		ItemID:     item.ID,
		Method:     method,
		Confidence: 0,
		Reasoning:  reason,
	}
}
