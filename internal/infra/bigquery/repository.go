// Package bigquery implements the store interfaces on top of BigQuery.
// Append-only tables (transactions, links, balances, artifacts) use the
// streaming inserter; mutable tables (sessions, candidates, patterns) use
// parameterized DML so rows can be updated in place.
package bigquery

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/statement-engine/internal/patterns"
	"github.com/dvloznov/statement-engine/internal/store"
)

const (
	defaultDataset = "statements"

	sessionsTable     = "upload_sessions"
	candidatesTable   = "candidates"
	transactionsTable = "transactions"
	linksTable        = "transaction_links"
	balancesTable     = "balance_records"
	artifactsTable    = "parse_artifacts"
	patternsTable     = "merchant_patterns"
)

// Repository owns a shared BigQuery client and hands out the per-entity
// stores. All stores reference the same client, so Close must be called
// once, when the repository is no longer needed.
type Repository struct {
	client  *bigquery.Client
	dataset string
}

// NewRepository creates a repository from the BQ_PROJECT and BQ_DATASET
// environment variables.
func NewRepository(ctx context.Context) (*Repository, error) {
	projectID := os.Getenv("BQ_PROJECT")
	if projectID == "" {
		return nil, fmt.Errorf("NewRepository: BQ_PROJECT is not set")
	}
	dataset := os.Getenv("BQ_DATASET")
	if dataset == "" {
		dataset = defaultDataset
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, dataset: dataset}, nil
}

// Close closes the shared BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Sessions returns the session store backed by this repository.
func (r *Repository) Sessions() store.Sessions {
	return &SessionStore{client: r.client, dataset: r.dataset}
}

// Candidates returns the candidate store backed by this repository.
func (r *Repository) Candidates() store.Candidates {
	return &CandidateStore{client: r.client, dataset: r.dataset}
}

// Transactions returns the transaction store backed by this repository.
func (r *Repository) Transactions() store.Transactions {
	return &TransactionStore{client: r.client, dataset: r.dataset}
}

// Links returns the link store backed by this repository.
func (r *Repository) Links() store.Links {
	return &LinkStore{client: r.client, dataset: r.dataset}
}

// Balances returns the balance store backed by this repository.
func (r *Repository) Balances() store.Balances {
	return &BalanceStore{client: r.client, dataset: r.dataset}
}

// Artifacts returns the artifact store backed by this repository.
func (r *Repository) Artifacts() store.Artifacts {
	return &ArtifactStore{client: r.client, dataset: r.dataset}
}

// SeedPatterns loads all persisted merchant patterns into the given
// in-memory store. Called once at startup; the in-memory store serves
// lookups, this repository persists changes.
func (r *Repository) SeedPatterns(ctx context.Context, mem *patterns.MemoryStore) error {
	ps := &PatternStore{client: r.client, dataset: r.dataset}
	rows, err := ps.listAll(ctx)
	if err != nil {
		return fmt.Errorf("SeedPatterns: %w", err)
	}
	mem.Seed(rows)
	return nil
}

// PersistingPatterns wraps the in-memory pattern store with write-through
// persistence to BigQuery.
func (r *Repository) PersistingPatterns(mem *patterns.MemoryStore) patterns.Store {
	return &PersistentPatterns{
		mem:     mem,
		backend: &PatternStore{client: r.client, dataset: r.dataset},
	}
}

// runDML executes a parameterized DML statement and waits for completion.
func runDML(ctx context.Context, client *bigquery.Client, sql string, params []bigquery.QueryParameter) error {
	q := client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
