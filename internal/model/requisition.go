package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequisitionStatus drives the disbursement/reconciliation state machine.
type RequisitionStatus string

// Requisition status constants, in lifecycle order.
const (
	StatusDraft           RequisitionStatus = "DRAFT"
	StatusSubmitted       RequisitionStatus = "SUBMITTED"
	StatusAuthorised      RequisitionStatus = "AUTHORISED"
	StatusRejected        RequisitionStatus = "REJECTED"
	StatusDisbursed       RequisitionStatus = "DISBURSED"
	StatusReceived        RequisitionStatus = "RECEIVED"
	StatusChangeSubmitted RequisitionStatus = "CHANGE_SUBMITTED"
	StatusCompleted       RequisitionStatus = "COMPLETED"
)

// RequisitionType distinguishes what the requested cash is for.
type RequisitionType string

// Requisition type constants.
const (
	TypeExpense RequisitionType = "EXPENSE"
	TypeAdvance RequisitionType = "ADVANCE"
	TypeLoan    RequisitionType = "LOAN"
)

// LineItem is a single requested expense line within a requisition.
// Account assignment is optional until the item is classified or a human
// confirms a different account.
type LineItem struct {
	Description     string          `json:"description"`
	ReceiptRef      string          `json:"receipt_ref,omitempty"`
	AccountID       string          `json:"account_id,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	EstimatedAmount decimal.Decimal `json:"estimated_amount"`
	ActualAmount    decimal.Decimal `json:"actual_amount"`
	Index           int             `json:"index"`
	HasActual       bool            `json:"has_actual"`
}

// Requisition is a staff request for cash: expense, salary advance or loan.
type Requisition struct {
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	ID             string            `json:"id"`
	RequestorID    string            `json:"requestor_id"`
	Purpose        string            `json:"purpose"`
	Status         RequisitionStatus `json:"status"`
	Type           RequisitionType   `json:"type"`
	Items          []LineItem        `json:"items"`
	EstimatedTotal decimal.Decimal   `json:"estimated_total"`
	ActualTotal    decimal.Decimal   `json:"actual_total"`
}

// validTransitions enumerates the allowed status edges. REJECTED is
// terminal and only reachable before any cash moves.
var validTransitions = map[RequisitionStatus][]RequisitionStatus{
	StatusDraft:           {StatusSubmitted, StatusRejected},
	StatusSubmitted:       {StatusAuthorised, StatusRejected},
	StatusAuthorised:      {StatusDisbursed, StatusRejected},
	StatusDisbursed:       {StatusReceived},
	StatusReceived:        {StatusChangeSubmitted},
	StatusChangeSubmitted: {StatusCompleted},
}

// CanTransition reports whether moving from one status to another is a
// legal state-machine edge.
func CanTransition(from, to RequisitionStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s RequisitionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// SumActuals recomputes the requisition's actual total from its line items.
// Items without a recorded actual amount contribute nothing.
func (r *Requisition) SumActuals() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		if item.HasActual {
			total = total.Add(item.ActualAmount)
		}
	}
	return total
}
