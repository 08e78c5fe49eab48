package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/fintrax/pettyflow/internal/auth"
	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/disburse"
	"github.com/fintrax/pettyflow/internal/ledger"
	"github.com/fintrax/pettyflow/internal/model"
)

type denominationRequest struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// parseDenominations converts the wire representation into a validated
// DenominationSet.
func parseDenominations(in []denominationRequest) (model.DenominationSet, error) {
	set := make(model.DenominationSet, 0, len(in))
	for i, den := range in {
		value, err := decimal.NewFromString(den.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: denomination %d has invalid value %q", common.ErrValidation, i, den.Value)
		}
		set = append(set, model.Denomination{Value: value, Count: den.Count})
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return set, nil
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid %s %q", common.ErrValidation, field, raw)
	}
	return amount, nil
}

type disburseRequest struct {
	PaymentMethod  string                `json:"payment_method"`
	Denominations  []denominationRequest `json:"denominations,omitempty"`
	TransferAmount string                `json:"transfer_amount,omitempty"`
	ProofRef       string                `json:"proof_ref,omitempty"`
	ConfirmExcess  bool                  `json:"confirm_excess,omitempty"`
}

// handleDisburse serves POST /requisitions/{id}/disburse.
func (s *Server) handleDisburse(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}

	var req disburseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	denominations, err := parseDenominations(req.Denominations)
	if err != nil {
		respondError(w, err)
		return
	}
	transferAmount, err := parseAmount("transfer_amount", req.TransferAmount)
	if err != nil {
		respondError(w, err)
		return
	}

	method := model.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = model.PaymentCash
	}

	disbursement, err := s.lifecycle.Disburse(r.Context(), actor, mux.Vars(r)["id"], disburse.DisburseRequest{
		PaymentMethod:  method,
		Denominations:  denominations,
		TransferAmount: transferAmount,
		ProofRef:       req.ProofRef,
		ConfirmExcess:  req.ConfirmExcess,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, disbursement)
}

type receiveRequest struct {
	Signature string `json:"signature"`
}

// handleAcknowledgeReceipt serves POST /requisitions/{id}/receive.
func (s *Server) handleAcknowledgeReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}

	var req receiveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	requisitionID := mux.Vars(r)["id"]
	if err := s.lifecycle.AcknowledgeReceipt(r.Context(), actor, requisitionID, req.Signature); err != nil {
		respondError(w, err)
		return
	}
	s.respondRequisition(w, r, requisitionID)
}

type expenseRequest struct {
	ItemIndex    int    `json:"item_index"`
	ActualAmount string `json:"actual_amount"`
	ReceiptRef   string `json:"receipt_ref,omitempty"`
}

type trackExpensesRequest struct {
	Expenses []expenseRequest `json:"expenses"`
}

// handleTrackExpenses serves POST /requisitions/{id}/expenses.
func (s *Server) handleTrackExpenses(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}

	var req trackExpensesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	records := make([]disburse.ExpenseRecord, 0, len(req.Expenses))
	for _, expense := range req.Expenses {
		amount, err := parseAmount("actual_amount", expense.ActualAmount)
		if err != nil {
			respondError(w, err)
			return
		}
		records = append(records, disburse.ExpenseRecord{
			ItemIndex:    expense.ItemIndex,
			ActualAmount: amount,
			ReceiptRef:   expense.ReceiptRef,
		})
	}

	requisition, err := s.lifecycle.TrackExpenses(r.Context(), actor, mux.Vars(r)["id"], records)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, requisition)
}

type submitChangeRequest struct {
	Denominations   []denominationRequest `json:"denominations,omitempty"`
	ChangeAmount    string                `json:"change_amount"`
	ConfirmMismatch bool                  `json:"confirm_mismatch,omitempty"`
}

// handleSubmitChange serves POST /requisitions/{id}/change.
func (s *Server) handleSubmitChange(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}

	var req submitChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	denominations, err := parseDenominations(req.Denominations)
	if err != nil {
		respondError(w, err)
		return
	}
	amount, err := parseAmount("change_amount", req.ChangeAmount)
	if err != nil {
		respondError(w, err)
		return
	}

	disbursement, err := s.lifecycle.SubmitChange(r.Context(), actor, mux.Vars(r)["id"], denominations, amount, req.ConfirmMismatch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, disbursement)
}

type confirmChangeRequest struct {
	Denominations   []denominationRequest `json:"denominations,omitempty"`
	ConfirmedAmount string                `json:"confirmed_amount"`
}

// handleConfirmChange serves POST /requisitions/{id}/change/confirm.
func (s *Server) handleConfirmChange(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}

	var req confirmChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	denominations, err := parseDenominations(req.Denominations)
	if err != nil {
		respondError(w, err)
		return
	}
	amount, err := parseAmount("confirmed_amount", req.ConfirmedAmount)
	if err != nil {
		respondError(w, err)
		return
	}

	disbursement, err := s.lifecycle.ConfirmChange(r.Context(), actor, mux.Vars(r)["id"], denominations, amount)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, disbursement)
}

// handleVoucherPost serves POST /requisitions/{id}/voucher, forwarding a
// payment voucher to the accounting backend. Repeat calls return the same
// reference.
func (s *Server) handleVoucherPost(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}
	if !auth.CanManageBook(actor.Role) {
		respondError(w, fmt.Errorf("role %s may not post vouchers: %w", actor.Role, common.ErrForbidden))
		return
	}

	ref, err := s.poster.Post(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"ref": ref})
}

// handleBalance serves GET /cashbook/balance.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountType := r.URL.Query().Get("account_type")
	balance, err := s.cashbook.CurrentBalance(r.Context(), accountType)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(2)})
}

// handleEntries serves GET /cashbook/entries.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	accountType := r.URL.Query().Get("account_type")
	entries, err := s.cashbook.Entries(r.Context(), accountType)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type cashInflowRequest struct {
	Amount        string                `json:"amount"`
	Denominations []denominationRequest `json:"denominations,omitempty"`
	Description   string                `json:"description,omitempty"`
}

// handleCashInflow serves POST /cashbook/inflow: a top-up of the float,
// recorded as a RETURN-style debit entry.
func (s *Server) handleCashInflow(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}
	if !auth.CanManageBook(actor.Role) {
		respondError(w, fmt.Errorf("role %s may not record inflows: %w", actor.Role, common.ErrForbidden))
		return
	}

	var req cashInflowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}
	if !amount.IsPositive() {
		respondError(w, fmt.Errorf("%w: inflow amount must be positive", common.ErrValidation))
		return
	}
	denominations, err := parseDenominations(req.Denominations)
	if err != nil {
		respondError(w, err)
		return
	}
	if len(denominations) > 0 && !model.AmountsEqual(denominations.Total(), amount) {
		respondError(w, fmt.Errorf("%w: denominations total %s, not %s",
			common.ErrValidation, denominations.Total(), amount))
		return
	}

	description := req.Description
	if description == "" {
		description = "Cash inflow"
	}
	entry, err := s.cashbook.AppendEntry(r.Context(), model.CashbookEntry{
		AccountType: ledger.DefaultAccountType,
		Date:        time.Now().UTC(),
		Description: description,
		Type:        model.EntryReturn,
		Debit:       amount,
		Credit:      decimal.Zero,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

type reconcileRequest struct {
	PhysicalCount string                `json:"physical_count"`
	Breakdown     []denominationRequest `json:"breakdown,omitempty"`
	Notes         string                `json:"notes,omitempty"`
	AccountType   string                `json:"account_type,omitempty"`
}

// handleReconcile serves POST /cashbook/reconcile.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}
	if !auth.CanManageBook(actor.Role) {
		respondError(w, fmt.Errorf("role %s may not reconcile: %w", actor.Role, common.ErrForbidden))
		return
	}

	var req reconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	physicalCount, err := parseAmount("physical_count", req.PhysicalCount)
	if err != nil {
		respondError(w, err)
		return
	}
	breakdown, err := parseDenominations(req.Breakdown)
	if err != nil {
		respondError(w, err)
		return
	}

	result, err := s.cashbook.Reconcile(r.Context(), req.AccountType, physicalCount, breakdown, req.Notes)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type closeBookRequest struct {
	PhysicalCount string `json:"physical_count"`
	Date          string `json:"date,omitempty"`
	Notes         string `json:"notes,omitempty"`
	AccountType   string `json:"account_type,omitempty"`
}

// handleCloseBook serves POST /cashbook/close.
func (s *Server) handleCloseBook(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}
	if !auth.CanManageBook(actor.Role) {
		respondError(w, fmt.Errorf("role %s may not close the book: %w", actor.Role, common.ErrForbidden))
		return
	}

	var req closeBookRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	physicalCount, err := parseAmount("physical_count", req.PhysicalCount)
	if err != nil {
		respondError(w, err)
		return
	}
	var date time.Time
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			respondError(w, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", common.ErrValidation, req.Date))
			return
		}
	}

	result, err := s.cashbook.CloseBook(r.Context(), req.AccountType, physicalCount, date, req.Notes)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
