// Package voucher posts completed transactions to an external bookkeeping
// provider. The provider is opaque; posting is idempotent and retryable
// and never gates the cash state machine.
package voucher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/metrics"
	"github.com/fintrax/pettyflow/internal/model"
)

// Store is the persistence the poster needs for idempotency.
type Store interface {
	GetRequisition(ctx context.Context, id string) (*model.Requisition, error)
	GetPostedVoucherRef(ctx context.Context, requisitionID string) (string, error)
	SavePostedVoucherRef(ctx context.Context, requisitionID, externalRef string) error
}

// Config holds the external provider's endpoint and credential.
type Config struct {
	BaseURL string
	Token   string
}

// Poster posts accounting vouchers for requisitions.
type Poster struct {
	store      Store
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
	retryOpts  common.RetryOptions
}

// NewPoster creates a voucher poster.
func NewPoster(store Store, cfg Config, logger *slog.Logger) *Poster {
	return &Poster{
		store:  store,
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		retryOpts: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			Multiplier:   2.0,
		},
	}
}

// voucherPayload is the wire format sent to the provider.
type voucherPayload struct {
	RequisitionID string           `json:"requisition_id"`
	Purpose       string           `json:"purpose"`
	Type          string           `json:"type"`
	Lines         []voucherLine    `json:"lines"`
	Totals        map[string]string `json:"totals"`
}

type voucherLine struct {
	Description string `json:"description"`
	AccountID   string `json:"account_id,omitempty"`
	Amount      string `json:"amount"`
}

// Post sends a voucher for the requisition. Allowed from RECEIVED,
// CHANGE_SUBMITTED or COMPLETED. Posting twice reuses the first external
// reference without a second network call.
func (p *Poster) Post(ctx context.Context, requisitionID string) (string, error) {
	requisition, err := p.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return "", err
	}

	switch requisition.Status {
	case model.StatusReceived, model.StatusChangeSubmitted, model.StatusCompleted:
	default:
		return "", fmt.Errorf("requisition %s is %s; voucher posting requires RECEIVED or later: %w",
			requisitionID, requisition.Status, common.ErrInvalidTransition)
	}

	if existing, err := p.store.GetPostedVoucherRef(ctx, requisitionID); err != nil {
		return "", err
	} else if existing != "" {
		p.logger.Debug("voucher already posted", "requisition_id", requisitionID, "ref", existing)
		return existing, nil
	}

	payload := voucherPayload{
		RequisitionID: requisition.ID,
		Purpose:       requisition.Purpose,
		Type:          string(requisition.Type),
		Totals: map[string]string{
			"estimated": requisition.EstimatedTotal.String(),
			"actual":    requisition.ActualTotal.String(),
		},
	}
	for _, item := range requisition.Items {
		amount := item.EstimatedAmount
		if item.HasActual {
			amount = item.ActualAmount
		}
		payload.Lines = append(payload.Lines, voucherLine{
			Description: item.Description,
			AccountID:   item.AccountID,
			Amount:      amount.String(),
		})
	}

	var externalRef string
	err = common.WithRetry(ctx, func(attemptCtx context.Context) error {
		ref, postErr := p.postOnce(attemptCtx, payload)
		if postErr != nil {
			return &common.RetryableError{Err: postErr, Retryable: true}
		}
		externalRef = ref
		return nil
	}, p.retryOpts)
	if err != nil {
		metrics.VoucherPostsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("voucher post failed: %w", err)
	}

	if err := p.store.SavePostedVoucherRef(ctx, requisitionID, externalRef); err != nil {
		return "", err
	}
	metrics.VoucherPostsTotal.WithLabelValues("ok").Inc()

	p.logger.Info("voucher posted",
		"requisition_id", requisitionID,
		"external_ref", externalRef)
	return externalRef, nil
}

func (p *Poster) postOnce(ctx context.Context, payload voucherPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal voucher: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/vouchers", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}
	// The provider deduplicates on this key if our save fails mid-way.
	req.Header.Set("Idempotency-Key", payload.RequisitionID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("provider error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse provider response: %w", err)
	}
	if parsed.Ref == "" {
		return "", fmt.Errorf("provider returned no voucher ref")
	}
	return parsed.Ref, nil
}
