package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	bq "github.com/dvloznov/statement-engine/internal/bigquery"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/store"
)

// BalanceStore implements store.Balances on BigQuery.
type BalanceStore struct {
	client  *bigquery.Client
	dataset string
}

const balanceColumns = `
	record_id, account_id, balance, date, entry_type,
	statement_balance, reconciliation_status, difference,
	total_income, total_expenses, calculated_change, actual_change,
	has_discrepancy, missing_transactions, created_ts`

// Insert appends a balance record.
func (s *BalanceStore) Insert(ctx context.Context, r *domain.BalanceRecord) error {
	inserter := s.client.Dataset(s.dataset).Table(balancesTable).Inserter()
	if err := inserter.Put(ctx, bq.BalanceRowFromDomain(r)); err != nil {
		return fmt.Errorf("BalanceStore.Insert: inserting row: %w", err)
	}
	return nil
}

// ListByAccount returns an account's balance records, newest date first.
func (s *BalanceStore) ListByAccount(ctx context.Context, accountID string) ([]*domain.BalanceRecord, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE account_id = @account_id
		ORDER BY date DESC, created_ts DESC
	`, balanceColumns, s.dataset, balancesTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BalanceStore.ListByAccount: query read: %w", err)
	}

	var records []*domain.BalanceRecord
	for {
		var row bq.BalanceRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("BalanceStore.ListByAccount: iter next: %w", err)
		}
		records = append(records, row.ToDomain())
	}
	return records, nil
}

var _ store.Balances = (*BalanceStore)(nil)
