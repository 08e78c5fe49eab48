package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyTolerance absorbs decimal rounding when comparing cash amounts.
// Currency is never compared with exact equality.
var CurrencyTolerance = decimal.NewFromFloat(0.01)

// AmountsEqual reports whether two currency amounts agree within tolerance.
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(CurrencyTolerance)
}

// Denomination is a cash note or coin face value with a count.
type Denomination struct {
	Value decimal.Decimal `json:"value"`
	Count int             `json:"count"`
}

// DenominationSet is an ordered collection of denominations used for cash
// inflow, disbursement preparation, returned change and closing counts.
type DenominationSet []Denomination

// Total returns the face value of the set.
func (d DenominationSet) Total() decimal.Decimal {
	total := decimal.Zero
	for _, den := range d {
		total = total.Add(den.Value.Mul(decimal.NewFromInt(int64(den.Count))))
	}
	return total
}

// Validate rejects malformed denomination breakdowns at the boundary.
func (d DenominationSet) Validate() error {
	for i, den := range d {
		if den.Count < 0 {
			return fmt.Errorf("denomination %d: count must not be negative", i)
		}
		if !den.Value.IsPositive() {
			return fmt.Errorf("denomination %d: value must be positive", i)
		}
	}
	return nil
}

// EntryType categorizes cashbook entries.
type EntryType string

// Cashbook entry type constants.
const (
	EntryDisbursement   EntryType = "DISBURSEMENT"
	EntryReturn         EntryType = "RETURN"
	EntryAdjustment     EntryType = "ADJUSTMENT"
	EntryOpeningBalance EntryType = "OPENING_BALANCE"
	EntryClosingBalance EntryType = "CLOSING_BALANCE"
)

// CashbookEntry is one row of the append-only petty-cash ledger. A debit
// represents cash entering the float and a credit cash leaving it;
// BalanceAfter of entry N equals BalanceAfter of entry N-1 + debit - credit.
type CashbookEntry struct {
	Date          time.Time       `json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
	Description   string          `json:"description"`
	Type          EntryType       `json:"entry_type"`
	Status        string          `json:"status"`
	RequisitionID string          `json:"requisition_id,omitempty"`
	AccountType   string          `json:"account_type"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	ID            int64           `json:"id"`
}

// PaymentMethod distinguishes physical cash from bank transfers.
type PaymentMethod string

// Payment method constants.
const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
)

// Disbursement records prepared cash handed out against an authorized
// requisition, and the change cycle that follows. Created at disbursement
// time, mutated at change submission and confirmation, never deleted.
type Disbursement struct {
	DisbursedAt            time.Time       `json:"disbursed_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
	ID                     string          `json:"id"`
	RequisitionID          string          `json:"requisition_id"`
	DisbursedBy            string          `json:"disbursed_by"`
	ProofRef               string          `json:"proof_ref,omitempty"`
	ReceiptSignature       string          `json:"receipt_signature,omitempty"`
	PaymentMethod          PaymentMethod   `json:"payment_method"`
	Denominations          DenominationSet `json:"denominations,omitempty"`
	ReturnedDenominations  DenominationSet `json:"returned_denominations,omitempty"`
	ConfirmedDenominations DenominationSet `json:"confirmed_denominations,omitempty"`
	TotalPrepared          decimal.Decimal `json:"total_prepared"`
	ActualChangeAmount     decimal.Decimal `json:"actual_change_amount"`
	ConfirmedChangeAmount  decimal.Decimal `json:"confirmed_change_amount"`
	DiscrepancyAmount      decimal.Decimal `json:"discrepancy_amount"`
	ChangeSubmitted        bool            `json:"change_submitted"`
	ChangeConfirmed        bool            `json:"change_confirmed"`
}
