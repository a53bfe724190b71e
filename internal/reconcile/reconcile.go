// Package reconcile compares committed transactions against statement
// balances for a period and reports discrepancies.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/google/uuid"
)

// TransactionSource supplies the committed transactions for a period. The
// store layer implements it.
type TransactionSource interface {
	TransactionsInPeriod(ctx context.Context, accountID string, start, end civil.Date) ([]*domain.Transaction, error)
}

// BalanceSource supplies previously recorded balance records, from which the
// period's opening balance is derived.
type BalanceSource interface {
	ListByAccount(ctx context.Context, accountID string) ([]*domain.BalanceRecord, error)
}

// Request describes one reconciliation run.
type Request struct {
	AccountID string
	Start     civil.Date
	End       civil.Date

	// StatementBalance is the closing balance as the statement quotes it.
	// The opening balance comes from the account's balance history, not the
	// caller.
	StatementBalance domain.Amount
}

// Reconciler computes period reconciliation records. Epsilon is the gap, in
// minor units, below which calculated and actual change are considered equal.
type Reconciler struct {
	source   TransactionSource
	balances BalanceSource
	epsilon  int64
	now      func() time.Time
}

// New creates a reconciler over the given transaction and balance sources.
func New(source TransactionSource, balances BalanceSource, epsilon int64) *Reconciler {
	return &Reconciler{source: source, balances: balances, epsilon: epsilon, now: time.Now}
}

// Reconcile runs one reconciliation. The computation is a pure function of
// the committed transactions and the request, so re-running with the same
// inputs yields an identical record apart from its ID and timestamp.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (*domain.BalanceRecord, error) {
	if req.End.Before(req.Start) {
		return nil, fmt.Errorf("period end %s before start %s", req.End, req.Start)
	}

	opening, err := r.openingBalance(ctx, req.AccountID, req.Start)
	if err != nil {
		return nil, fmt.Errorf("loading opening balance for %s: %w", req.AccountID, err)
	}

	txns, err := r.source.TransactionsInPeriod(ctx, req.AccountID, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("loading transactions for %s: %w", req.AccountID, err)
	}

	var income, expenses domain.Amount
	for _, t := range txns {
		if t.Amount > 0 {
			income += t.Amount
		} else {
			expenses += -t.Amount
		}
	}

	calculated := income - expenses
	actual := req.StatementBalance - opening
	gap := calculated - actual
	if gap < 0 {
		gap = -gap
	}

	stmt := req.StatementBalance
	record := &domain.BalanceRecord{
		RecordID:  uuid.NewString(),
		AccountID: req.AccountID,
		Balance:   opening + calculated,
		Date:      req.End,
		EntryType: domain.EntryReconciliation,

		StatementBalance: &stmt,
		Difference:       stmt - (opening + calculated),

		TotalIncome:      income,
		TotalExpenses:    expenses,
		CalculatedChange: calculated,
		ActualChange:     actual,

		CreatedTS: r.now().UTC(),
	}

	if int64(gap) <= r.epsilon {
		record.ReconciliationStatus = domain.ReconReconciled
	} else {
		record.ReconciliationStatus = domain.ReconDiscrepancy
		record.HasDiscrepancy = true
		record.MissingTransactions = estimateMissing(gap, txns)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("account_id", req.AccountID).
		Str("status", string(record.ReconciliationStatus)).
		Str("opening_balance", opening.String()).
		Str("calculated_change", calculated.String()).
		Str("actual_change", actual.String()).
		Int("missing_transactions", record.MissingTransactions).
		Msg("reconciliation complete")
	return record, nil
}

// openingBalance is the balance of the most recent record dated before the
// period starts. An account with no prior history opens at zero.
func (r *Reconciler) openingBalance(ctx context.Context, accountID string, start civil.Date) (domain.Amount, error) {
	records, err := r.balances.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	var prior *domain.BalanceRecord
	for _, rec := range records {
		if !rec.Date.Before(start) {
			continue
		}
		if prior == nil || rec.Date.After(prior.Date) ||
			(rec.Date == prior.Date && rec.CreatedTS.After(prior.CreatedTS)) {
			prior = rec
		}
	}
	if prior == nil {
		return 0, nil
	}
	return prior.Balance, nil
}

// estimateMissing guesses how many transactions would close the gap: the gap
// divided by the median committed transaction magnitude in the period,
// never less than one.
func estimateMissing(gap domain.Amount, txns []*domain.Transaction) int {
	med := medianMagnitude(txns)
	if med == 0 {
		return 1
	}
	n := int(gap / med)
	if n < 1 {
		n = 1
	}
	return n
}

func medianMagnitude(txns []*domain.Transaction) domain.Amount {
	if len(txns) == 0 {
		return 0
	}
	mags := make([]domain.Amount, 0, len(txns))
	for _, t := range txns {
		mags = append(mags, t.Amount.Abs())
	}
	sort.Slice(mags, func(i, j int) bool { return mags[i] < mags[j] })
	mid := len(mags) / 2
	if len(mags)%2 == 0 {
		return (mags[mid-1] + mags[mid]) / 2
	}
	return mags[mid]
}
