package reconcile

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	txns []*domain.Transaction
	err  error
}

func (s *staticSource) TransactionsInPeriod(ctx context.Context, accountID string, start, end civil.Date) ([]*domain.Transaction, error) {
	return s.txns, s.err
}

type staticBalances struct {
	records []*domain.BalanceRecord
	err     error
}

func (s *staticBalances) ListByAccount(ctx context.Context, accountID string) ([]*domain.BalanceRecord, error) {
	return s.records, s.err
}

func amt(v int64) domain.Amount { return domain.Amount(v) }

func periodTxn(id string, amount domain.Amount) *domain.Transaction {
	return &domain.Transaction{
		TransactionID: id,
		AccountID:     "acc-1",
		Amount:        amount,
		Currency:      "GBP",
		CreatedTS:     time.Now().UTC(),
	}
}

func priorBalance(balance domain.Amount, d civil.Date) *domain.BalanceRecord {
	return &domain.BalanceRecord{
		RecordID:  "prior-" + d.String(),
		AccountID: "acc-1",
		Balance:   balance,
		Date:      d,
		EntryType: domain.EntryReconciliation,
		CreatedTS: time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC),
	}
}

func janPeriod() (civil.Date, civil.Date) {
	return civil.Date{Year: 2024, Month: 1, Day: 1}, civil.Date{Year: 2024, Month: 1, Day: 31}
}

func openedAt(balance domain.Amount) *staticBalances {
	return &staticBalances{records: []*domain.BalanceRecord{
		priorBalance(balance, civil.Date{Year: 2023, Month: 12, Day: 31}),
	}}
}

func TestReconcile_Balanced(t *testing.T) {
	start, end := janPeriod()
	source := &staticSource{txns: []*domain.Transaction{
		periodTxn("t1", amt(150000)), // +1500.00 salary
		periodTxn("t2", amt(-95000)), // -950.00 rent
		periodTxn("t3", amt(-5000)),  // -50.00 groceries
	}}

	r := New(source, openedAt(amt(100000)), 1)
	record, err := r.Reconcile(context.Background(), Request{
		AccountID:        "acc-1",
		Start:            start,
		End:              end,
		StatementBalance: amt(100000 + 150000 - 95000 - 5000),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ReconReconciled, record.ReconciliationStatus)
	assert.False(t, record.HasDiscrepancy)
	assert.Equal(t, 0, record.MissingTransactions)
	assert.Equal(t, amt(150000), record.TotalIncome)
	assert.Equal(t, amt(100000), record.TotalExpenses)
	assert.Equal(t, amt(50000), record.CalculatedChange)
	assert.Equal(t, record.CalculatedChange, record.ActualChange)
	assert.Equal(t, domain.EntryReconciliation, record.EntryType)
}

func TestReconcile_OpeningFromLatestPriorRecord(t *testing.T) {
	// Two prior records: the later one is the period's opening balance.
	start, end := janPeriod()
	balances := &staticBalances{records: []*domain.BalanceRecord{
		priorBalance(amt(70000), civil.Date{Year: 2023, Month: 11, Day: 30}),
		priorBalance(amt(100000), civil.Date{Year: 2023, Month: 12, Day: 31}),
		// A record inside the period must not be mistaken for the opening.
		priorBalance(amt(999999), civil.Date{Year: 2024, Month: 1, Day: 15}),
	}}
	source := &staticSource{txns: []*domain.Transaction{
		periodTxn("t1", amt(50000)),
	}}

	r := New(source, balances, 1)
	record, err := r.Reconcile(context.Background(), Request{
		AccountID:        "acc-1",
		Start:            start,
		End:              end,
		StatementBalance: amt(150000),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ReconReconciled, record.ReconciliationStatus)
	assert.Equal(t, amt(150000), record.Balance)
	assert.Equal(t, amt(50000), record.ActualChange)
}

func TestReconcile_NoHistoryOpensAtZero(t *testing.T) {
	start, end := janPeriod()
	source := &staticSource{txns: []*domain.Transaction{
		periodTxn("t1", amt(25000)),
	}}

	r := New(source, &staticBalances{}, 1)
	record, err := r.Reconcile(context.Background(), Request{
		AccountID:        "acc-1",
		Start:            start,
		End:              end,
		StatementBalance: amt(25000),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReconReconciled, record.ReconciliationStatus)
	assert.Equal(t, amt(25000), record.Balance)
}

func TestReconcile_FiftyDollarDiscrepancy(t *testing.T) {
	// Statement shows $50.00 more movement than the committed transactions
	// explain: one transaction of median size is the likely omission.
	start, end := janPeriod()
	source := &staticSource{txns: []*domain.Transaction{
		periodTxn("t1", amt(-4000)), // -40.00
		periodTxn("t2", amt(-5000)), // -50.00
		periodTxn("t3", amt(-6000)), // -60.00
	}}

	r := New(source, openedAt(amt(50000)), 1)
	record, err := r.Reconcile(context.Background(), Request{
		AccountID:        "acc-1",
		Start:            start,
		End:              end,
		StatementBalance: amt(50000 - 15000 - 5000), // extra 50.00 out
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ReconDiscrepancy, record.ReconciliationStatus)
	assert.True(t, record.HasDiscrepancy)
	assert.Equal(t, amt(-15000), record.CalculatedChange)
	assert.Equal(t, amt(-20000), record.ActualChange)
	assert.Equal(t, 1, record.MissingTransactions)
}

func TestReconcile_LargeGapEstimatesSeveral(t *testing.T) {
	start, end := janPeriod()
	source := &staticSource{txns: []*domain.Transaction{
		periodTxn("t1", amt(-1000)), // median magnitude 10.00
	}}

	r := New(source, openedAt(amt(10000)), 1)
	record, err := r.Reconcile(context.Background(), Request{
		AccountID:        "acc-1",
		Start:            start,
		End:              end,
		StatementBalance: amt(10000 - 1000 - 3500), // gap of 35.00
	})
	require.NoError(t, err)
	assert.Equal(t, 3, record.MissingTransactions)
}

func TestReconcile_GapWithinEpsilon(t *testing.T) {
	start, end := janPeriod()
	source := &staticSource{txns: []*domain.Transaction{
		periodTxn("t1", amt(-1000)),
	}}

	r := New(source, openedAt(amt(10000)), 1)
	record, err := r.Reconcile(context.Background(), Request{
		AccountID:        "acc-1",
		Start:            start,
		End:              end,
		StatementBalance: amt(10000 - 1000 - 1), // off by one minor unit
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReconReconciled, record.ReconciliationStatus)
}

func TestReconcile_EmptyPeriod(t *testing.T) {
	start, end := janPeriod()
	source := &staticSource{}

	r := New(source, openedAt(amt(10000)), 1)
	record, err := r.Reconcile(context.Background(), Request{
		AccountID:        "acc-1",
		Start:            start,
		End:              end,
		StatementBalance: amt(9000),
	})
	require.NoError(t, err)
	assert.True(t, record.HasDiscrepancy)
	assert.Equal(t, 1, record.MissingTransactions)
}

func TestReconcile_Idempotent(t *testing.T) {
	start, end := janPeriod()
	source := &staticSource{txns: []*domain.Transaction{
		periodTxn("t1", amt(-4000)),
		periodTxn("t2", amt(5000)),
	}}

	r := New(source, openedAt(amt(20000)), 1)
	req := Request{
		AccountID:        "acc-1",
		Start:            start,
		End:              end,
		StatementBalance: amt(21000),
	}

	first, err := r.Reconcile(context.Background(), req)
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ReconciliationStatus, second.ReconciliationStatus)
	assert.Equal(t, first.CalculatedChange, second.CalculatedChange)
	assert.Equal(t, first.ActualChange, second.ActualChange)
	assert.Equal(t, first.MissingTransactions, second.MissingTransactions)
	assert.NotEqual(t, first.RecordID, second.RecordID)
}

func TestReconcile_InvertedPeriod(t *testing.T) {
	start, end := janPeriod()
	r := New(&staticSource{}, &staticBalances{}, 1)
	_, err := r.Reconcile(context.Background(), Request{
		AccountID: "acc-1",
		Start:     end,
		End:       start,
	})
	assert.Error(t, err)
}
