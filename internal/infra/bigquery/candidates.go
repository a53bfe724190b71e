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

// CandidateStore implements store.Candidates on BigQuery. The batch write
// uses the streaming inserter; review-time status changes go through DML.
type CandidateStore struct {
	client  *bigquery.Client
	dataset string
}

const candidateColumns = `
	candidate_id, session_id, row_index, import_status, raw_fields,
	date, amount, currency, description, is_credit,
	category_name, category_confidence, merchant_name, pattern_id,
	model_confidence, transaction_id, errors, created_ts`

// PutBatch inserts the full candidate set of a session in one call.
func (s *CandidateStore) PutBatch(ctx context.Context, cands []domain.Candidate) error {
	if len(cands) == 0 {
		return nil
	}

	rows := make([]*bq.CandidateRow, 0, len(cands))
	for i := range cands {
		rows = append(rows, bq.CandidateRowFromDomain(&cands[i]))
	}

	inserter := s.client.Dataset(s.dataset).Table(candidatesTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("CandidateStore.PutBatch: inserting rows: %w", err)
	}
	return nil
}

// Get returns a candidate by ID.
func (s *CandidateStore) Get(ctx context.Context, candidateID string) (*domain.Candidate, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE candidate_id = @candidate_id
	`, candidateColumns, s.dataset, candidatesTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "candidate_id", Value: candidateID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("CandidateStore.Get: query read: %w", err)
	}

	var row bq.CandidateRow
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return nil, fmt.Errorf("candidate %s: %w", candidateID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("CandidateStore.Get: iter next: %w", err)
	}
	return row.ToDomain(), nil
}

// Update rewrites the review-mutable fields of a candidate.
func (s *CandidateStore) Update(ctx context.Context, c *domain.Candidate) error {
	sql := fmt.Sprintf(`
		UPDATE %s.%s SET
			import_status = @import_status,
			category_name = @category_name,
			category_confidence = @category_confidence,
			merchant_name = @merchant_name,
			pattern_id = @pattern_id,
			transaction_id = @transaction_id
		WHERE candidate_id = @candidate_id
	`, s.dataset, candidatesTable)

	params := []bigquery.QueryParameter{
		{Name: "candidate_id", Value: c.CandidateID},
		{Name: "import_status", Value: string(c.ImportStatus)},
		{Name: "category_name", Value: c.CategoryName},
		{Name: "category_confidence", Value: c.CategoryConfidence},
		{Name: "merchant_name", Value: c.MerchantName},
		{Name: "pattern_id", Value: c.PatternID},
		{Name: "transaction_id", Value: c.TransactionID},
	}
	if err := runDML(ctx, s.client, sql, params); err != nil {
		return fmt.Errorf("CandidateStore.Update: %w", err)
	}
	return nil
}

// ListBySession returns a session's candidates in source document order.
func (s *CandidateStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.Candidate, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE session_id = @session_id
		ORDER BY row_index
	`, candidateColumns, s.dataset, candidatesTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: sessionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("CandidateStore.ListBySession: query read: %w", err)
	}

	var cands []*domain.Candidate
	for {
		var row bq.CandidateRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CandidateStore.ListBySession: iter next: %w", err)
		}
		cands = append(cands, row.ToDomain())
	}
	return cands, nil
}

var _ store.Candidates = (*CandidateStore)(nil)
