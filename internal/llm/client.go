// Package llm adapts external language-model providers for expense
// line-item classification.
package llm

import (
	"context"

	"github.com/fintrax/pettyflow/internal/model"
)

// Client is the provider-level contract: one structured classification
// request, no retry logic. Retries live in the Classifier wrapper.
type Client interface {
	ClassifyExpense(ctx context.Context, prompt string) (ClassificationResponse, error)
}

// ClassificationResponse is the strictly parsed model output. A malformed
// provider response is a failure, never a best-effort partial result.
type ClassificationResponse struct {
	Intent        model.Intent `json:"intent"`
	SuggestedCode string       `json:"suggested_code"`
	Reasoning     string       `json:"reasoning"`
	Confidence    float64      `json:"confidence"`
}
