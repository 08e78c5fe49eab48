// Package ledger maintains the append-only petty-cash cashbook with its
// running-balance invariant, reconciliation and book-closing operations.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintrax/pettyflow/internal/common"
	"github.com/fintrax/pettyflow/internal/model"
)

// DefaultAccountType identifies the main petty-cash float.
const DefaultAccountType = "petty_cash"

// Store is the persistence contract the cashbook needs.
type Store interface {
	AppendCashbookEntry(ctx context.Context, entry model.CashbookEntry) (*model.CashbookEntry, error)
	CurrentCashbookBalance(ctx context.Context, accountType string) (decimal.Decimal, error)
	ListCashbookEntries(ctx context.Context, accountType string) ([]model.CashbookEntry, error)
	SetCashbookBaseline(ctx context.Context, accountType string, opening decimal.Decimal, openingDate time.Time) error
}

// ReconcileResult reports a comparison of the ledger against a physical
// cash count. A variance is a first-class outcome, not an error.
type ReconcileResult struct {
	SystemBalance decimal.Decimal `json:"systemBalance"`
	PhysicalCount decimal.Decimal `json:"physicalCount"`
	Variance      decimal.Decimal `json:"variance"`
	IsBalanced    bool            `json:"isBalanced"`
}

// CloseResult reports the outcome of closing the book for a period.
type CloseResult struct {
	OpeningDate       time.Time       `json:"openingDate"`
	NewOpeningBalance decimal.Decimal `json:"newOpeningBalance"`
}

// Cashbook serializes appends per ledger so that no two writers compute
// balance_after from the same predecessor. The storage layer additionally
// detects interleaved appends; a detected conflict is retried once.
type Cashbook struct {
	store  Store
	logger *slog.Logger
	locks  map[string]*sync.Mutex
	mu     sync.Mutex
}

// NewCashbook creates a cashbook over the given store.
func NewCashbook(store Store, logger *slog.Logger) *Cashbook {
	return &Cashbook{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing appends for one ledger.
func (c *Cashbook) lockFor(accountType string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lock, ok := c.locks[accountType]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	c.locks[accountType] = lock
	return lock
}

// AppendEntry appends an entry and returns it with its computed
// balance_after. No reader can observe a balance that doesn't correspond
// to a committed entry.
func (c *Cashbook) AppendEntry(ctx context.Context, entry model.CashbookEntry) (*model.CashbookEntry, error) {
	if entry.AccountType == "" {
		entry.AccountType = DefaultAccountType
	}
	if entry.Debit.IsNegative() || entry.Credit.IsNegative() {
		return nil, fmt.Errorf("%w: debit and credit must not be negative", common.ErrValidation)
	}

	lock := c.lockFor(entry.AccountType)
	lock.Lock()
	defer lock.Unlock()

	appended, err := c.store.AppendCashbookEntry(ctx, entry)
	if errors.Is(err, common.ErrLedgerConflict) {
		// Retry once with a fresh predecessor read; fail loudly after that.
		c.logger.Warn("cashbook append conflicted, retrying",
			"account_type", entry.AccountType,
			"entry_type", entry.Type)
		appended, err = c.store.AppendCashbookEntry(ctx, entry)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("cashbook entry appended",
		"account_type", appended.AccountType,
		"entry_type", appended.Type,
		"debit", appended.Debit,
		"credit", appended.Credit,
		"balance_after", appended.BalanceAfter)

	return appended, nil
}

// CurrentBalance returns the balance_after of the most recent entry, or
// the configured opening balance for an empty ledger.
func (c *Cashbook) CurrentBalance(ctx context.Context, accountType string) (decimal.Decimal, error) {
	if accountType == "" {
		accountType = DefaultAccountType
	}
	return c.store.CurrentCashbookBalance(ctx, accountType)
}

// Entries returns the full cashbook for audit, in append order.
func (c *Cashbook) Entries(ctx context.Context, accountType string) ([]model.CashbookEntry, error) {
	if accountType == "" {
		accountType = DefaultAccountType
	}
	return c.store.ListCashbookEntries(ctx, accountType)
}

// Reconcile compares a physical cash count against the ledger balance.
// When the variance exceeds tolerance an ADJUSTMENT entry is appended so
// the ledger self-corrects to the physical truth, with the discrepancy
// logged in the entry description.
func (c *Cashbook) Reconcile(ctx context.Context, accountType string, physicalCount decimal.Decimal, breakdown model.DenominationSet, notes string) (*ReconcileResult, error) {
	if accountType == "" {
		accountType = DefaultAccountType
	}
	if physicalCount.IsNegative() {
		return nil, fmt.Errorf("%w: physical count must not be negative", common.ErrValidation)
	}
	if err := breakdown.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if len(breakdown) > 0 && !model.AmountsEqual(breakdown.Total(), physicalCount) {
		return nil, fmt.Errorf("%w: denomination breakdown totals %s, not %s",
			common.ErrValidation, breakdown.Total(), physicalCount)
	}

	lock := c.lockFor(accountType)
	lock.Lock()
	defer lock.Unlock()

	systemBalance, err := c.store.CurrentCashbookBalance(ctx, accountType)
	if err != nil {
		return nil, err
	}

	variance := physicalCount.Sub(systemBalance)
	result := &ReconcileResult{
		SystemBalance: systemBalance,
		PhysicalCount: physicalCount,
		Variance:      variance,
		IsBalanced:    variance.Abs().LessThanOrEqual(model.CurrencyTolerance),
	}

	if !result.IsBalanced {
		if _, err := c.appendAdjustment(ctx, accountType, variance, notes); err != nil {
			return nil, err
		}
		c.logger.Warn("cash count variance detected",
			"account_type", accountType,
			"system_balance", systemBalance,
			"physical_count", physicalCount,
			"variance", variance)
	}

	return result, nil
}

// CloseBook fixes the balance at the physical count with a CLOSING_BALANCE
// entry (preceded by an ADJUSTMENT when there is a variance) and
// establishes the physical count as the opening balance effective the
// following calendar day. Prior entries remain immutable for audit.
func (c *Cashbook) CloseBook(ctx context.Context, accountType string, physicalCount decimal.Decimal, date time.Time, notes string) (*CloseResult, error) {
	if accountType == "" {
		accountType = DefaultAccountType
	}
	if physicalCount.IsNegative() {
		return nil, fmt.Errorf("%w: physical count must not be negative", common.ErrValidation)
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}

	lock := c.lockFor(accountType)
	lock.Lock()
	defer lock.Unlock()

	systemBalance, err := c.store.CurrentCashbookBalance(ctx, accountType)
	if err != nil {
		return nil, err
	}

	variance := physicalCount.Sub(systemBalance)
	if variance.Abs().GreaterThan(model.CurrencyTolerance) {
		if _, err := c.appendAdjustment(ctx, accountType, variance, notes); err != nil {
			return nil, err
		}
	}

	description := "Book closed"
	if notes != "" {
		description = fmt.Sprintf("Book closed: %s", notes)
	}
	if _, err := c.store.AppendCashbookEntry(ctx, model.CashbookEntry{
		AccountType: accountType,
		Date:        date,
		Description: description,
		Type:        model.EntryClosingBalance,
		Debit:       decimal.Zero,
		Credit:      decimal.Zero,
	}); err != nil {
		return nil, err
	}

	openingDate := date.AddDate(0, 0, 1).Truncate(24 * time.Hour)
	if err := c.store.SetCashbookBaseline(ctx, accountType, physicalCount, openingDate); err != nil {
		return nil, err
	}

	if _, err := c.store.AppendCashbookEntry(ctx, model.CashbookEntry{
		AccountType: accountType,
		Date:        openingDate,
		Description: fmt.Sprintf("Opening balance %s", openingDate.Format("2006-01-02")),
		Type:        model.EntryOpeningBalance,
		Debit:       decimal.Zero,
		Credit:      decimal.Zero,
	}); err != nil {
		return nil, err
	}

	c.logger.Info("book closed",
		"account_type", accountType,
		"closing_balance", physicalCount,
		"opening_date", openingDate)

	return &CloseResult{
		NewOpeningBalance: physicalCount,
		OpeningDate:       openingDate,
	}, nil
}

// appendAdjustment posts an ADJUSTMENT whose debit or credit moves the
// running balance to physical reality. Callers hold the ledger lock.
func (c *Cashbook) appendAdjustment(ctx context.Context, accountType string, variance decimal.Decimal, notes string) (*model.CashbookEntry, error) {
	debit, credit := decimal.Zero, decimal.Zero
	if variance.IsPositive() {
		debit = variance
	} else {
		credit = variance.Neg()
	}

	description := fmt.Sprintf("Adjustment: variance %s", variance.StringFixed(2))
	if notes != "" {
		description = fmt.Sprintf("%s (%s)", description, notes)
	}

	return c.store.AppendCashbookEntry(ctx, model.CashbookEntry{
		AccountType: accountType,
		Date:        time.Now().UTC(),
		Description: description,
		Type:        model.EntryAdjustment,
		Debit:       debit,
		Credit:      credit,
	})
}
