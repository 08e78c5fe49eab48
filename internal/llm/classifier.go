package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/model"
)

// Config holds configuration for the LLM classifier.
type Config struct {
	Provider       string
	APIKey         string
	Model          string
	MaxRetries     int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	Temperature    float64
	MaxTokens      int
}

// Classifier wraps a provider Client with the classification retry policy:
// up to 3 attempts, each under a 10s timeout, with a fixed 1s backoff
// between attempts. Without an API credential every call fails fast with
// common.ErrNoAPIKey before any network activity.
type Classifier struct {
	client    Client
	logger    *slog.Logger
	retryOpts common.RetryOptions
	hasKey    bool
}

// NewClassifier creates a new LLM-based classifier.
func NewClassifier(cfg Config, logger *slog.Logger) (*Classifier, error) {
	hasKey := cfg.APIKey != ""

	var client Client
	if hasKey {
		var err error
		switch strings.ToLower(cfg.Provider) {
		case "", "openai":
			client, err = newOpenAIClient(cfg)
		default:
			return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
	}

	retryOpts := common.RetryOptions{
		MaxAttempts:    cfg.MaxRetries,
		InitialDelay:   cfg.RetryDelay,
		AttemptTimeout: cfg.AttemptTimeout,
		Multiplier:     1.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}
	if retryOpts.AttemptTimeout == 0 {
		retryOpts.AttemptTimeout = 10 * time.Second
	}

	return &Classifier{
		client:    client,
		logger:    logger,
		retryOpts: retryOpts,
		hasKey:    hasKey,
	}, nil
}

// NewClassifierWithClient builds a classifier around an injected client,
// used by tests to avoid real sleeps and network calls.
func NewClassifierWithClient(client Client, retryOpts common.RetryOptions, logger *slog.Logger) *Classifier {
	return &Classifier{
		client:    client,
		logger:    logger,
		retryOpts: retryOpts,
		hasKey:    client != nil,
	}
}

// Classify infers the intent and suggested account code for a free-text
// description. After exhausting retries the last error is propagated; the
// caller decides how to surface the failure, a guess is never returned.
func (c *Classifier) Classify(ctx context.Context, description string, amount string, accounts []model.Account) (ClassificationResponse, error) {
	if !c.hasKey {
		return ClassificationResponse{}, common.ErrNoAPIKey
	}

	prompt := c.buildPrompt(description, amount, accounts)

	var response ClassificationResponse

	err := common.WithRetry(ctx, func(attemptCtx context.Context) error {
		c.logger.Debug("attempting LLM classification", "description", description)

		resp, err := c.client.ClassifyExpense(attemptCtx, prompt)
		if err != nil {
			c.logger.Warn("LLM classification attempt failed",
				"error", err,
				"description", description)
			return &common.RetryableError{Err: err, Retryable: true}
		}

		response = resp
		return nil
	}, c.retryOpts)

	if err != nil {
		return ClassificationResponse{}, fmt.Errorf("%w: %v", common.ErrClassificationFailed, err)
	}

	c.logger.Info("line item classified by AI",
		"description", description,
		"suggested_code", response.SuggestedCode,
		"category", response.Intent.Category,
		"confidence", response.Confidence)

	return response, nil
}

// buildPrompt creates the classification prompt listing the known chart of
// accounts so the model suggests codes that can resolve internally.
func (c *Classifier) buildPrompt(description, amount string, accounts []model.Account) string {
	accountList := ""
	for _, acct := range accounts {
		if !acct.IsActive {
			continue
		}
		accountList += fmt.Sprintf("- %s: %s (%s)\n", acct.Code, acct.Name, acct.Type)
	}

	return fmt.Sprintf(`Classify this expense line item against the chart of accounts below.

Line Item:
Description: %s
Amount: %s

Chart of Accounts:
%s
Respond with a JSON object in exactly this shape:
{
  "intent": {"category": "<short category label>", "tags": ["<tag>", ...]},
  "suggested_code": "<account code from the chart, or your best code if none fit>",
  "confidence": <0.0-1.0>,
  "reasoning": "<one sentence explaining the choice>"
}

Classify by what the expense IS, not assumptions about why it was incurred.`,
		description,
		amount,
		accountList)
}
