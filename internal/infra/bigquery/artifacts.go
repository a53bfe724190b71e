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

// ArtifactStore implements store.Artifacts on BigQuery. Artifacts are the
// append-only audit trail of parser-level runs.
type ArtifactStore struct {
	client  *bigquery.Client
	dataset string
}

const artifactColumns = `
	artifact_id, session_id, level,
	rows_extracted, unparsed_lines, unparsed_ratio,
	escalated, error_message, started_ts, finished_ts`

// Insert appends a parse artifact.
func (s *ArtifactStore) Insert(ctx context.Context, a *domain.ParseArtifact) error {
	inserter := s.client.Dataset(s.dataset).Table(artifactsTable).Inserter()
	if err := inserter.Put(ctx, bq.ArtifactRowFromDomain(a)); err != nil {
		return fmt.Errorf("ArtifactStore.Insert: inserting row: %w", err)
	}
	return nil
}

// ListBySession returns a session's artifacts in run order.
func (s *ArtifactStore) ListBySession(ctx context.Context, sessionID string) ([]*domain.ParseArtifact, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE session_id = @session_id
		ORDER BY started_ts
	`, artifactColumns, s.dataset, artifactsTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: sessionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ArtifactStore.ListBySession: query read: %w", err)
	}

	var artifacts []*domain.ParseArtifact
	for {
		var row bq.ArtifactRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ArtifactStore.ListBySession: iter next: %w", err)
		}
		artifacts = append(artifacts, row.ToDomain())
	}
	return artifacts, nil
}

var _ store.Artifacts = (*ArtifactStore)(nil)
