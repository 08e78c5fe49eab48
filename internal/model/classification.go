package model

import "time"

// ClassificationMethod indicates which stage of the pipeline produced a
// classification result.
type ClassificationMethod string

// Classification method constants.
const (
	MethodRule       ClassificationMethod = "RULE"
	MethodCache      ClassificationMethod = "CACHE"
	MethodAI         ClassificationMethod = "AI"
	MethodAIError    ClassificationMethod = "AI-ERROR"
	MethodErrorNoKey ClassificationMethod = "ERROR-NO-KEY"
)

// Intent is the structured interpretation of a line-item description
// returned by the AI classifier.
type Intent struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
}

// ClassificationResult is produced transiently per line item by the
// classification pipeline. AccountCode/AccountID are empty when no account
// could be resolved; Confidence is 0 on failure.
type ClassificationResult struct {
	ItemID      string               `json:"item_id"`
	AccountID   string               `json:"account_id,omitempty"`
	AccountCode string               `json:"account_code,omitempty"`
	Reasoning   string               `json:"reasoning,omitempty"`
	Method      ClassificationMethod `json:"method"`
	Intent      Intent               `json:"intent"`
	Confidence  float64              `json:"confidence"`
}

// ClassificationLog is the persisted record of an AI suggestion for audit
// and accuracy tracking. WasOverridden is set later if a human picks a
// different account than suggested.
type ClassificationLog struct {
	CreatedAt          time.Time `json:"created_at"`
	RequisitionID      string    `json:"requisition_id"`
	SuggestedAccountID string    `json:"suggested_account_id,omitempty"`
	SuggestedCode      string    `json:"suggested_code"`
	FinalAccountID     string    `json:"final_account_id,omitempty"`
	Intent             Intent    `json:"intent"`
	ID                 int64     `json:"id"`
	LineItemIndex      int       `json:"line_item_index"`
	Confidence         float64   `json:"confidence"`
	WasOverridden      bool      `json:"was_overridden"`
}

// MemoryEntry is a prior AI or human-confirmed classification keyed by the
// SHA-256 signature of a normalized description. One entry per signature;
// usage count strictly increases on every hit.
type MemoryEntry struct {
	CreatedAt     time.Time `json:"created_at"`
	LastUsedAt    time.Time `json:"last_used_at"`
	Signature     string    `json:"signature"`
	AccountID     string    `json:"account_id"`
	Intent        Intent    `json:"intent"`
	UsageCount    int       `json:"usage_count"`
	Confidence    float64   `json:"confidence"`
	AccuracyScore float64   `json:"accuracy_score"`
}

// MemoryEligibilityThreshold is the minimum confidence for a memory entry
// to short-circuit the AI step. Lower-confidence entries are retained for
// analytics only.
const MemoryEligibilityThreshold = 0.8

// Eligible reports whether the entry is authoritative enough to bypass
// the AI classifier.
func (e *MemoryEntry) Eligible() bool {
	return e.Confidence > MemoryEligibilityThreshold
}
