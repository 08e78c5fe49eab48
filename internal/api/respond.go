package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fintrax/pettyflow/internal/common"
)

// respondJSON writes a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// errorBody is the uniform error envelope. Message is user-facing and
// distinguishes remediation flows; Detail carries the internal cause.
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// respondError maps the error taxonomy onto HTTP statuses: validation and
// guard failures 422, state conflicts 409, role violations 403, missing
// resources 404, ledger conflicts 503, everything else 500.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, common.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrInsufficientPrepared),
		errors.Is(err, common.ErrExcessUnconfirmed),
		errors.Is(err, common.ErrChangeMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrLedgerConflict):
		status = http.StatusServiceUnavailable
	}

	body := errorBody{Message: err.Error()}
	var userErr *common.UserError
	if errors.As(err, &userErr) {
		body.Message = userErr.UserMessage
		if userErr.Err != nil {
			body.Detail = userErr.Err.Error()
		}
	}

	respondJSON(w, status, body)
}

// decodeJSON strictly decodes a request body.
func decodeJSON(r *http.Request, into any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return common.NewUserError("invalid request body", fmt.Errorf("%w: %v", common.ErrValidation, err))
	}
	return nil
}
