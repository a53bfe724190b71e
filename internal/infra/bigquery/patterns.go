package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	bq "github.com/dvloznov/statement-engine/internal/bigquery"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/patterns"
)

// PatternStore persists merchant patterns. It is not a patterns.Store by
// itself: lookups need the in-memory index, so this type only loads and
// upserts rows for PersistentPatterns.
type PatternStore struct {
	client  *bigquery.Client
	dataset string
}

const patternColumns = `
	pattern_id, pattern, pattern_type, merchant_name, category_name,
	confidence, usage_count, last_used_ts, created_ts,
	is_user_confirmed, is_active`

// listAll returns every persisted pattern, active and inactive.
func (s *PatternStore) listAll(ctx context.Context) ([]*domain.MerchantPattern, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
	`, patternColumns, s.dataset, patternsTable)

	it, err := s.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("PatternStore.listAll: query read: %w", err)
	}

	var out []*domain.MerchantPattern
	for {
		var row bq.PatternRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("PatternStore.listAll: iter next: %w", err)
		}
		out = append(out, row.ToDomain())
	}
	return out, nil
}

// upsert writes the full pattern row, inserting or updating by pattern_id.
func (s *PatternStore) upsert(ctx context.Context, p *domain.MerchantPattern) error {
	row := bq.PatternRowFromDomain(p)

	sql := fmt.Sprintf(`
		MERGE %s.%s t
		USING (SELECT @pattern_id AS pattern_id) src
		ON t.pattern_id = src.pattern_id
		WHEN MATCHED THEN UPDATE SET
			confidence = @confidence,
			usage_count = @usage_count,
			last_used_ts = @last_used_ts,
			is_user_confirmed = @is_user_confirmed,
			is_active = @is_active
		WHEN NOT MATCHED THEN INSERT (%s)
		VALUES (
			@pattern_id, @pattern, @pattern_type, @merchant_name, @category_name,
			@confidence, @usage_count, @last_used_ts, @created_ts,
			@is_user_confirmed, @is_active
		)
	`, s.dataset, patternsTable, patternColumns)

	params := []bigquery.QueryParameter{
		{Name: "pattern_id", Value: row.PatternID},
		{Name: "pattern", Value: row.Pattern},
		{Name: "pattern_type", Value: row.PatternType},
		{Name: "merchant_name", Value: row.MerchantName},
		{Name: "category_name", Value: row.CategoryName},
		{Name: "confidence", Value: row.Confidence},
		{Name: "usage_count", Value: row.UsageCount},
		{Name: "last_used_ts", Value: row.LastUsedTS},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "is_user_confirmed", Value: row.IsUserConfirmed},
		{Name: "is_active", Value: row.IsActive},
	}
	if err := runDML(ctx, s.client, sql, params); err != nil {
		return fmt.Errorf("PatternStore.upsert: %w", err)
	}
	return nil
}

// PersistentPatterns is a write-through patterns.Store: reads are served by
// the in-memory store seeded at startup, and every mutation is flushed to
// BigQuery before returning.
type PersistentPatterns struct {
	mem     *patterns.MemoryStore
	backend *PatternStore
}

// Lookup implements patterns.Store.
func (p *PersistentPatterns) Lookup(ctx context.Context, description string) (*domain.MerchantPattern, bool) {
	return p.mem.Lookup(ctx, description)
}

// Learn implements patterns.Store.
func (p *PersistentPatterns) Learn(ctx context.Context, pattern, merchantName, categoryName string) (*domain.MerchantPattern, error) {
	learned, err := p.mem.Learn(ctx, pattern, merchantName, categoryName)
	if err != nil {
		return nil, err
	}
	if err := p.backend.upsert(ctx, learned); err != nil {
		return nil, fmt.Errorf("persisting learned pattern: %w", err)
	}
	return learned, nil
}

// RecordUse implements patterns.Store.
func (p *PersistentPatterns) RecordUse(ctx context.Context, patternID, candidateID string) error {
	if err := p.mem.RecordUse(ctx, patternID, candidateID); err != nil {
		return err
	}
	return p.flush(ctx, patternID)
}

// Reinforce implements patterns.Store.
func (p *PersistentPatterns) Reinforce(ctx context.Context, patternID string, confirmed bool) error {
	if err := p.mem.Reinforce(ctx, patternID, confirmed); err != nil {
		return err
	}
	return p.flush(ctx, patternID)
}

// Get implements patterns.Store.
func (p *PersistentPatterns) Get(ctx context.Context, patternID string) (*domain.MerchantPattern, error) {
	return p.mem.Get(ctx, patternID)
}

// List implements patterns.Store.
func (p *PersistentPatterns) List(ctx context.Context) ([]*domain.MerchantPattern, error) {
	return p.mem.List(ctx)
}

// Deactivate implements patterns.Store.
func (p *PersistentPatterns) Deactivate(ctx context.Context, patternID string) error {
	if err := p.mem.Deactivate(ctx, patternID); err != nil {
		return err
	}
	return p.flush(ctx, patternID)
}

func (p *PersistentPatterns) flush(ctx context.Context, patternID string) error {
	current, err := p.mem.Get(ctx, patternID)
	if err != nil {
		return err
	}
	if err := p.backend.upsert(ctx, current); err != nil {
		return fmt.Errorf("persisting pattern %s: %w", patternID, err)
	}
	return nil
}

var _ patterns.Store = (*PersistentPatterns)(nil)
