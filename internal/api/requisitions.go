package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/fintrax/pettyflow/internal/auth"
	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/model"
)

type lineItemRequest struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

type createRequisitionRequest struct {
	Purpose string            `json:"purpose"`
	Type    string            `json:"type"`
	Items   []lineItemRequest `json:"items"`
}

// handleCreateRequisition serves POST /requisitions. The requisition is
// created in DRAFT with its estimated total derived from the items.
func (s *Server) handleCreateRequisition(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}

	var req createRequisitionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Purpose == "" {
		respondError(w, fmt.Errorf("%w: purpose is required", common.ErrValidation))
		return
	}
	if len(req.Items) == 0 {
		respondError(w, fmt.Errorf("%w: at least one line item is required", common.ErrValidation))
		return
	}

	reqType := model.RequisitionType(req.Type)
	switch reqType {
	case model.TypeExpense, model.TypeAdvance, model.TypeLoan:
	case "":
		reqType = model.TypeExpense
	default:
		respondError(w, fmt.Errorf("%w: unknown requisition type %q", common.ErrValidation, req.Type))
		return
	}

	requisition := model.Requisition{
		ID:          uuid.NewString(),
		RequestorID: actor.ID,
		Purpose:     req.Purpose,
		Type:        reqType,
		Status:      model.StatusDraft,
	}
	for i, item := range req.Items {
		quantity, err := decimal.NewFromString(item.Quantity)
		if err != nil || !quantity.IsPositive() {
			respondError(w, fmt.Errorf("%w: item %d has invalid quantity", common.ErrValidation, i))
			return
		}
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			respondError(w, fmt.Errorf("%w: item %d has invalid unit price", common.ErrValidation, i))
			return
		}
		estimated := quantity.Mul(unitPrice)
		requisition.Items = append(requisition.Items, model.LineItem{
			Index:           i,
			Description:     item.Description,
			Quantity:        quantity,
			UnitPrice:       unitPrice,
			EstimatedAmount: estimated,
		})
		requisition.EstimatedTotal = requisition.EstimatedTotal.Add(estimated)
	}

	if err := s.store.CreateRequisition(r.Context(), requisition); err != nil {
		respondError(w, err)
		return
	}

	s.logger.Info("requisition created",
		"requisition_id", requisition.ID,
		"requestor_id", actor.ID,
		"estimated_total", requisition.EstimatedTotal)

	respondJSON(w, http.StatusCreated, requisition)
}

// handleGetRequisition serves GET /requisitions/{id}.
func (s *Server) handleGetRequisition(w http.ResponseWriter, r *http.Request) {
	requisition, err := s.store.GetRequisition(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, requisition)
}

// handleSubmitRequisition serves POST /requisitions/{id}/submit, moving
// DRAFT to SUBMITTED. Only the requestor may submit their own draft.
func (s *Server) handleSubmitRequisition(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}
	requisitionID := mux.Vars(r)["id"]

	requisition, err := s.store.GetRequisition(r.Context(), requisitionID)
	if err != nil {
		respondError(w, err)
		return
	}
	if requisition.RequestorID != actor.ID && actor.Role != auth.RoleAdmin {
		respondError(w, fmt.Errorf("only the requestor may submit: %w", common.ErrForbidden))
		return
	}

	if err := s.store.UpdateRequisitionStatus(r.Context(), requisitionID, model.StatusDraft, model.StatusSubmitted); err != nil {
		respondError(w, err)
		return
	}
	s.respondRequisition(w, r, requisitionID)
}

// handleAuthoriseRequisition serves POST /requisitions/{id}/authorise,
// moving SUBMITTED to AUTHORISED. Approver or admin only.
func (s *Server) handleAuthoriseRequisition(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}
	if !auth.CanReject(actor.Role) {
		respondError(w, fmt.Errorf("role %s may not authorise: %w", actor.Role, common.ErrForbidden))
		return
	}
	requisitionID := mux.Vars(r)["id"]

	if err := s.store.UpdateRequisitionStatus(r.Context(), requisitionID, model.StatusSubmitted, model.StatusAuthorised); err != nil {
		respondError(w, err)
		return
	}

	s.logger.Info("requisition authorised",
		"requisition_id", requisitionID,
		"authorised_by", actor.ID)

	s.respondRequisition(w, r, requisitionID)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// handleRejectRequisition serves POST /requisitions/{id}/reject.
func (s *Server) handleRejectRequisition(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, common.ErrForbidden)
		return
	}

	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	requisitionID := mux.Vars(r)["id"]
	if err := s.lifecycle.Reject(r.Context(), actor, requisitionID, req.Reason); err != nil {
		respondError(w, err)
		return
	}
	s.respondRequisition(w, r, requisitionID)
}

// respondRequisition writes the current state of a requisition.
func (s *Server) respondRequisition(w http.ResponseWriter, r *http.Request, id string) {
	requisition, err := s.store.GetRequisition(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, requisition)
}
