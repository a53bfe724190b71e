package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	bq "github.com/dvloznov/statement-engine/internal/bigquery"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/store"
)

// TransactionStore implements store.Transactions on BigQuery. Transactions
// are append-only, so inserts stream.
type TransactionStore struct {
	client  *bigquery.Client
	dataset string
}

const transactionColumns = `
	transaction_id, user_id, account_id,
	date, amount, currency, description, is_credit,
	category_name, merchant_name,
	source_candidate_id, session_id, created_ts`

// Insert appends a committed transaction.
func (s *TransactionStore) Insert(ctx context.Context, t *domain.Transaction) error {
	inserter := s.client.Dataset(s.dataset).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, bq.TransactionRowFromDomain(t)); err != nil {
		return fmt.Errorf("TransactionStore.Insert: inserting row: %w", err)
	}
	return nil
}

// Get returns a transaction by ID.
func (s *TransactionStore) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE transaction_id = @transaction_id
	`, transactionColumns, s.dataset, transactionsTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("TransactionStore.Get: query read: %w", err)
	}

	var row bq.TransactionRow
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("TransactionStore.Get: iter next: %w", err)
	}
	return row.ToDomain(), nil
}

// ListWindow returns transactions dated within [start, end]. An empty
// accountID matches all accounts, which link detection relies on.
func (s *TransactionStore) ListWindow(ctx context.Context, accountID string, start, end civil.Date) ([]*domain.Transaction, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE date >= @start_date
		  AND date <= @end_date
		  AND (@account_id = '' OR account_id = @account_id)
		ORDER BY date, transaction_id
	`, transactionColumns, s.dataset, transactionsTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: start},
		{Name: "end_date", Value: end},
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("TransactionStore.ListWindow: query read: %w", err)
	}

	var txns []*domain.Transaction
	for {
		var row bq.TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("TransactionStore.ListWindow: iter next: %w", err)
		}
		txns = append(txns, row.ToDomain())
	}
	return txns, nil
}

// TransactionsInPeriod is the reconciler's view of a period.
func (s *TransactionStore) TransactionsInPeriod(ctx context.Context, accountID string, start, end civil.Date) ([]*domain.Transaction, error) {
	return s.ListWindow(ctx, accountID, start, end)
}

var _ store.Transactions = (*TransactionStore)(nil)
