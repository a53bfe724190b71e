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

// SessionStore implements store.Sessions on BigQuery. Sessions mutate as
// they move through the state machine, so all writes go through DML.
type SessionStore struct {
	client  *bigquery.Client
	dataset string
}

const sessionColumns = `
	session_id, user_id, original_filename, file_type, byte_size,
	status, account_id,
	total_count, successful_count, failed_count, duplicate_count,
	started_ts, completed_ts, error_message,
	requires_password, password_attempts_left, ai_categorization,
	storage_uri, checksum_sha256`

// insertSessionSQL builds the INSERT statement for one session row.
func insertSessionSQL(dataset string) string {
	return fmt.Sprintf(`
		INSERT %s.%s (%s)
		VALUES (
			@session_id, @user_id, @original_filename, @file_type, @byte_size,
			@status, @account_id,
			@total_count, @successful_count, @failed_count, @duplicate_count,
			@started_ts, @completed_ts, @error_message,
			@requires_password, @password_attempts_left, @ai_categorization,
			@storage_uri, @checksum_sha256
		)
	`, dataset, sessionsTable, sessionColumns)
}

// Create inserts a new session row.
func (s *SessionStore) Create(ctx context.Context, sess *domain.UploadSession) error {
	row := bq.SessionRowFromDomain(sess)

	if err := runDML(ctx, s.client, insertSessionSQL(s.dataset), sessionParams(row)); err != nil {
		return fmt.Errorf("SessionStore.Create: %w", err)
	}
	return nil
}

// Get returns a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		WHERE session_id = @session_id
	`, sessionColumns, s.dataset, sessionsTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: sessionID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("SessionStore.Get: query read: %w", err)
	}

	var row bq.SessionRow
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("SessionStore.Get: iter next: %w", err)
	}
	return row.ToDomain(), nil
}

// Update rewrites the mutable fields of a session row.
func (s *SessionStore) Update(ctx context.Context, sess *domain.UploadSession) error {
	row := bq.SessionRowFromDomain(sess)

	sql := fmt.Sprintf(`
		UPDATE %s.%s SET
			status = @status,
			total_count = @total_count,
			successful_count = @successful_count,
			failed_count = @failed_count,
			duplicate_count = @duplicate_count,
			completed_ts = @completed_ts,
			error_message = @error_message,
			requires_password = @requires_password,
			password_attempts_left = @password_attempts_left,
			storage_uri = @storage_uri
		WHERE session_id = @session_id
	`, s.dataset, sessionsTable)

	params := []bigquery.QueryParameter{
		{Name: "session_id", Value: row.SessionID},
		{Name: "status", Value: row.Status},
		{Name: "total_count", Value: row.TotalCount},
		{Name: "successful_count", Value: row.SuccessfulCount},
		{Name: "failed_count", Value: row.FailedCount},
		{Name: "duplicate_count", Value: row.DuplicateCount},
		{Name: "completed_ts", Value: row.CompletedTS},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "requires_password", Value: row.RequiresPassword},
		{Name: "password_attempts_left", Value: row.PasswordAttemptsLeft},
		{Name: "storage_uri", Value: row.StorageURI},
	}
	if err := runDML(ctx, s.client, sql, params); err != nil {
		return fmt.Errorf("SessionStore.Update: %w", err)
	}
	return nil
}

// List returns sessions newest first.
func (s *SessionStore) List(ctx context.Context, limit, offset int) ([]*domain.UploadSession, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s.%s
		ORDER BY started_ts DESC
		LIMIT @limit OFFSET @offset
	`, sessionColumns, s.dataset, sessionsTable)

	q := s.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: int64(limit)},
		{Name: "offset", Value: int64(offset)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("SessionStore.List: query read: %w", err)
	}

	var sessions []*domain.UploadSession
	for {
		var row bq.SessionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("SessionStore.List: iter next: %w", err)
		}
		sessions = append(sessions, row.ToDomain())
	}
	return sessions, nil
}

func sessionParams(row *bq.SessionRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "session_id", Value: row.SessionID},
		{Name: "user_id", Value: row.UserID},
		{Name: "original_filename", Value: row.OriginalFilename},
		{Name: "file_type", Value: row.FileType},
		{Name: "byte_size", Value: row.ByteSize},
		{Name: "status", Value: row.Status},
		{Name: "account_id", Value: row.AccountID},
		{Name: "total_count", Value: row.TotalCount},
		{Name: "successful_count", Value: row.SuccessfulCount},
		{Name: "failed_count", Value: row.FailedCount},
		{Name: "duplicate_count", Value: row.DuplicateCount},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "completed_ts", Value: row.CompletedTS},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "requires_password", Value: row.RequiresPassword},
		{Name: "password_attempts_left", Value: row.PasswordAttemptsLeft},
		{Name: "ai_categorization", Value: row.AICategorization},
		{Name: "storage_uri", Value: row.StorageURI},
		{Name: "checksum_sha256", Value: row.ChecksumSHA256},
	}
}

var _ store.Sessions = (*SessionStore)(nil)
