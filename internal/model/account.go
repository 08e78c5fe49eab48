// Package model defines the core domain models used throughout the application.
package model

import "time"

// AccountType distinguishes chart-of-accounts entry kinds.
type AccountType string

// Account type constants.
const (
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeIncome    AccountType = "INCOME"
)

// Account is a chart-of-accounts entry that expense line items are
// classified into.
type Account struct {
	CreatedAt time.Time   `json:"created_at"`
	ID        string      `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	IsActive  bool        `json:"is_active"`
}

// AccountingRule maps a description pattern to a target account. Rules are
// evaluated in priority order before any cache or AI lookup; the first
// matching active rule is authoritative.
type AccountingRule struct {
	CreatedAt  time.Time `json:"created_at"`
	Name       string    `json:"name"`
	Pattern    string    `json:"pattern"`
	AccountID  string    `json:"account_id"`
	ID         int       `json:"id"`
	Priority   int       `json:"priority"`
	Confidence float64   `json:"confidence"`
	IsRegex    bool      `json:"is_regex"`
	IsActive   bool      `json:"is_active"`
}
