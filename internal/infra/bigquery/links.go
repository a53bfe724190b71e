package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	bq "github.com/dvloznov/statement-engine/internal/bigquery"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/store"
)

// LinkStore implements store.Links on BigQuery.
type LinkStore struct {
	client  *bigquery.Client
	dataset string
}

const linkColumns = `
	link_id, from_transaction_id, to_transaction_id,
	link_type, confidence, is_confirmed, auto_detected, created_ts`

// Insert appends a detected link. The one-link-per-pair rule is enforced
// here with a lookup first; detection already deduplicates within a run, so
// the race window is the gap between two concurrent commits.
func (s *LinkStore) Insert(ctx context.Context, l *domain.TransactionLink) error {
	if _, err := s.GetByPair(ctx, l.PairKey()); err == nil {
		return fmt.Errorf("link for pair %s already exists", l.PairKey())
	}

	inserter := s.client.Dataset(s.dataset).Table(linksTable).Inserter()
	if err := inserter.Put(ctx, bq.LinkRowFromDomain(l)); err != nil {
		return fmt.Errorf("LinkStore.Insert: inserting row: %w", err)
	}
	return nil
}

// Get returns a link by ID.
func (s *LinkStore) Get(ctx context.Context, linkID string) (*domain.TransactionLink, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE link_id = @link_id
	`, linkColumns, s.dataset, linksTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "link_id", Value: linkID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("LinkStore.Get: query read: %w", err)
	}

	var row bq.LinkRow
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return nil, fmt.Errorf("link %s: %w", linkID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("LinkStore.Get: iter next: %w", err)
	}
	return row.ToDomain(), nil
}

// GetByPair returns the link for an unordered transaction pair.
func (s *LinkStore) GetByPair(ctx context.Context, pairKey string) (*domain.TransactionLink, error) {
	a, b, ok := strings.Cut(pairKey, "|")
	if !ok {
		return nil, fmt.Errorf("LinkStore.GetByPair: malformed pair key %q", pairKey)
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE LEAST(from_transaction_id, to_transaction_id) = @a
		  AND GREATEST(from_transaction_id, to_transaction_id) = @b
	`, linkColumns, s.dataset, linksTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "a", Value: a},
		{Name: "b", Value: b},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("LinkStore.GetByPair: query read: %w", err)
	}

	var row bq.LinkRow
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return nil, fmt.Errorf("link pair %s: %w", pairKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("LinkStore.GetByPair: iter next: %w", err)
	}
	return row.ToDomain(), nil
}

// ListByTransaction returns every link touching the given transaction.
func (s *LinkStore) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.TransactionLink, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE from_transaction_id = @transaction_id
		   OR to_transaction_id = @transaction_id
		ORDER BY created_ts
	`, linkColumns, s.dataset, linksTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("LinkStore.ListByTransaction: query read: %w", err)
	}

	var links []*domain.TransactionLink
	for {
		var row bq.LinkRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("LinkStore.ListByTransaction: iter next: %w", err)
		}
		links = append(links, row.ToDomain())
	}
	return links, nil
}

var _ store.Links = (*LinkStore)(nil)
