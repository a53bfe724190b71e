// Package store defines the persistence interfaces of the engine and an
// in-memory implementation. The BigQuery-backed implementation lives in
// internal/infra/bigquery.
package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-engine/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Sessions persists upload sessions.
type Sessions interface {
	Create(ctx context.Context, s *domain.UploadSession) error
	Get(ctx context.Context, sessionID string) (*domain.UploadSession, error)
	Update(ctx context.Context, s *domain.UploadSession) error
	List(ctx context.Context, limit, offset int) ([]*domain.UploadSession, error)
}

// Candidates persists transaction candidates scoped to sessions.
type Candidates interface {
	PutBatch(ctx context.Context, cands []domain.Candidate) error
	Get(ctx context.Context, candidateID string) (*domain.Candidate, error)
	Update(ctx context.Context, c *domain.Candidate) error
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Candidate, error)
}

// Transactions persists committed transactions.
type Transactions interface {
	Insert(ctx context.Context, t *domain.Transaction) error
	Get(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// ListWindow returns transactions for an account dated within [start, end],
	// used by duplicate and link detection.
	ListWindow(ctx context.Context, accountID string, start, end civil.Date) ([]*domain.Transaction, error)

	// TransactionsInPeriod is the reconciler's view of a period. Identical to
	// ListWindow; named separately so the reconciler's dependency stays narrow.
	TransactionsInPeriod(ctx context.Context, accountID string, start, end civil.Date) ([]*domain.Transaction, error)
}

// Links persists detected transaction relationships.
type Links interface {
	Insert(ctx context.Context, l *domain.TransactionLink) error
	Get(ctx context.Context, linkID string) (*domain.TransactionLink, error)

	// GetByPair returns the active link for an unordered transaction pair.
	GetByPair(ctx context.Context, pairKey string) (*domain.TransactionLink, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*domain.TransactionLink, error)
}

// Balances persists balance and reconciliation records.
type Balances interface {
	Insert(ctx context.Context, r *domain.BalanceRecord) error
	ListByAccount(ctx context.Context, accountID string) ([]*domain.BalanceRecord, error)
}

// Artifacts persists per-level parser run records.
type Artifacts interface {
	Insert(ctx context.Context, a *domain.ParseArtifact) error
	ListBySession(ctx context.Context, sessionID string) ([]*domain.ParseArtifact, error)
}
