package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fintrax/pettyflow/internal/engine"
	"github.com/fintrax/pettyflow/internal/model"
)

// classifyItemRequest is one line item in a batch classification request.
type classifyItemRequest struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type classifyBatchRequest struct {
	LineItems     []classifyItemRequest `json:"line_items"`
	RequisitionID string                `json:"requisition_id,omitempty"`
}

type classifyBatchResponse struct {
	Results []model.ClassificationResult `json:"results"`
}

// handleClassifyBatch serves POST /classify/batch. One result per input
// item, order preserved, even when individual items fail.
func (s *Server) handleClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req classifyBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	items := make([]engine.Item, len(req.LineItems))
	for i, item := range req.LineItems {
		items[i] = engine.Item{
			ID:          item.ID,
			Description: item.Description,
			Amount:      item.Amount,
			Index:       i,
		}
	}

	results, err := s.engine.ClassifyBatch(r.Context(), req.RequisitionID, items)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, classifyBatchResponse{Results: results})
}

type classifySingleRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// handleClassifySingle serves POST /classify.
func (s *Server) handleClassifySingle(w http.ResponseWriter, r *http.Request) {
	var req classifySingleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	result, err := s.engine.ClassifySingle(r.Context(), req.Description, req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

type confirmAccountRequest struct {
	ItemIndex   int    `json:"item_index"`
	Description string `json:"description"`
	AccountID   string `json:"account_id"`
}

// handleConfirmAccount serves POST /requisitions/{id}/accounts: a human's
// final account pick, which marks the AI suggestion overridden when they
// differ and feeds memory.
func (s *Server) handleConfirmAccount(w http.ResponseWriter, r *http.Request) {
	requisitionID := mux.Vars(r)["id"]

	var req confirmAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := s.engine.ConfirmAccount(r.Context(), requisitionID, req.ItemIndex, req.Description, req.AccountID); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}
