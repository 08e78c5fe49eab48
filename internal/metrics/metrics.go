// Package metrics exposes prometheus instrumentation for the
// classification pipeline and the cash ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClassificationsTotal counts line-item classifications by method
	// (RULE, CACHE, AI, AI-ERROR, ERROR-NO-KEY).
	ClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pettyflow",
		Name:      "classifications_total",
		Help:      "Line-item classifications by pipeline method.",
	}, []string{"method"})

	// CashbookEntriesTotal counts ledger appends by entry type.
	CashbookEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pettyflow",
		Name:      "cashbook_entries_total",
		Help:      "Cashbook entries appended by type.",
	}, []string{"entry_type"})

	// DiscrepanciesTotal counts confirm-change discrepancies exceeding
	// the currency tolerance.
	DiscrepanciesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pettyflow",
		Name:      "change_discrepancies_total",
		Help:      "Change confirmations whose discrepancy exceeded tolerance.",
	})

	// VoucherPostsTotal counts external voucher posting attempts by outcome.
	VoucherPostsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pettyflow",
		Name:      "voucher_posts_total",
		Help:      "External voucher posting attempts by outcome.",
	}, []string{"outcome"})
)
