package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-engine/internal/domain"
)

// The in-memory stores below are safe for concurrent use and return copies
// to avoid external modifications. Data is lost on restart - for persistence,
// use the BigQuery-backed stores in internal/infra/bigquery.

// MemorySessions is an in-memory Sessions implementation.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]*domain.UploadSession
}

// NewMemorySessions creates an empty in-memory session store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]*domain.UploadSession)}
}

func (m *MemorySessions) Create(ctx context.Context, s *domain.UploadSession) error {
	if s.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.SessionID]; exists {
		return fmt.Errorf("session already exists: %s", s.SessionID)
	}
	cp := *s
	m.sessions[s.SessionID] = &cp
	return nil
}

func (m *MemorySessions) Get(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemorySessions) Update(ctx context.Context, s *domain.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.SessionID]; !exists {
		return fmt.Errorf("session %s: %w", s.SessionID, ErrNotFound)
	}
	cp := *s
	m.sessions[s.SessionID] = &cp
	return nil
}

func (m *MemorySessions) List(ctx context.Context, limit, offset int) ([]*domain.UploadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.UploadSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		result = append(result, &cp)
	}
	// Newest first.
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedTS.After(result[j].StartedTS)
	})

	if offset > 0 {
		if offset >= len(result) {
			return []*domain.UploadSession{}, nil
		}
		result = result[offset:]
	}
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

var _ Sessions = (*MemorySessions)(nil)

// MemoryCandidates is an in-memory Candidates implementation.
type MemoryCandidates struct {
	mu         sync.RWMutex
	candidates map[string]*domain.Candidate
}

// NewMemoryCandidates creates an empty in-memory candidate store.
func NewMemoryCandidates() *MemoryCandidates {
	return &MemoryCandidates{candidates: make(map[string]*domain.Candidate)}
}

func (m *MemoryCandidates) PutBatch(ctx context.Context, cands []domain.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range cands {
		c := cands[i]
		if c.CandidateID == "" {
			return fmt.Errorf("candidate ID is required")
		}
		m.candidates[c.CandidateID] = &c
	}
	return nil
}

func (m *MemoryCandidates) Get(ctx context.Context, candidateID string) (*domain.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, exists := m.candidates[candidateID]
	if !exists {
		return nil, fmt.Errorf("candidate %s: %w", candidateID, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryCandidates) Update(ctx context.Context, c *domain.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.candidates[c.CandidateID]; !exists {
		return fmt.Errorf("candidate %s: %w", c.CandidateID, ErrNotFound)
	}
	cp := *c
	m.candidates[c.CandidateID] = &cp
	return nil
}

func (m *MemoryCandidates) ListBySession(ctx context.Context, sessionID string) ([]*domain.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Candidate
	for _, c := range m.candidates {
		if c.SessionID != sessionID {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	// Source document order.
	sort.Slice(result, func(i, j int) bool {
		return result[i].RowIndex < result[j].RowIndex
	})
	return result, nil
}

var _ Candidates = (*MemoryCandidates)(nil)

// MemoryTransactions is an in-memory Transactions implementation.
type MemoryTransactions struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction
}

// NewMemoryTransactions creates an empty in-memory transaction store.
func NewMemoryTransactions() *MemoryTransactions {
	return &MemoryTransactions{transactions: make(map[string]*domain.Transaction)}
}

func (m *MemoryTransactions) Insert(ctx context.Context, t *domain.Transaction) error {
	if t.TransactionID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transactions[t.TransactionID]; exists {
		return fmt.Errorf("transaction already exists: %s", t.TransactionID)
	}
	cp := *t
	m.transactions[t.TransactionID] = &cp
	return nil
}

func (m *MemoryTransactions) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, exists := m.transactions[transactionID]
	if !exists {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryTransactions) ListWindow(ctx context.Context, accountID string, start, end civil.Date) ([]*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Transaction
	for _, t := range m.transactions {
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		if t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].TransactionID < result[j].TransactionID
	})
	return result, nil
}

func (m *MemoryTransactions) TransactionsInPeriod(ctx context.Context, accountID string, start, end civil.Date) ([]*domain.Transaction, error) {
	return m.ListWindow(ctx, accountID, start, end)
}

var _ Transactions = (*MemoryTransactions)(nil)

// MemoryLinks is an in-memory Links implementation. One active link per
// unordered pair is enforced at insert.
type MemoryLinks struct {
	mu          sync.RWMutex
	links       map[string]*domain.TransactionLink
	linksByPair map[string]string
}

// NewMemoryLinks creates an empty in-memory link store.
func NewMemoryLinks() *MemoryLinks {
	return &MemoryLinks{
		links:       make(map[string]*domain.TransactionLink),
		linksByPair: make(map[string]string),
	}
}

func (m *MemoryLinks) Insert(ctx context.Context, l *domain.TransactionLink) error {
	if l.LinkID == "" {
		return fmt.Errorf("link ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := l.PairKey()
	if _, exists := m.linksByPair[key]; exists {
		return fmt.Errorf("pair already linked: %s", key)
	}
	cp := *l
	m.links[l.LinkID] = &cp
	m.linksByPair[key] = l.LinkID
	return nil
}

func (m *MemoryLinks) Get(ctx context.Context, linkID string) (*domain.TransactionLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, exists := m.links[linkID]
	if !exists {
		return nil, fmt.Errorf("link %s: %w", linkID, ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryLinks) GetByPair(ctx context.Context, pairKey string) (*domain.TransactionLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, exists := m.linksByPair[pairKey]
	if !exists {
		return nil, fmt.Errorf("pair %s: %w", pairKey, ErrNotFound)
	}
	cp := *m.links[id]
	return &cp, nil
}

func (m *MemoryLinks) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.TransactionLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.TransactionLink
	for _, l := range m.links {
		if l.FromTransactionID != transactionID && l.ToTransactionID != transactionID {
			continue
		}
		cp := *l
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LinkID < result[j].LinkID })
	return result, nil
}

var _ Links = (*MemoryLinks)(nil)

// MemoryBalances is an in-memory Balances implementation.
type MemoryBalances struct {
	mu       sync.RWMutex
	balances map[string]*domain.BalanceRecord
}

// NewMemoryBalances creates an empty in-memory balance store.
func NewMemoryBalances() *MemoryBalances {
	return &MemoryBalances{balances: make(map[string]*domain.BalanceRecord)}
}

func (m *MemoryBalances) Insert(ctx context.Context, r *domain.BalanceRecord) error {
	if r.RecordID == "" {
		return fmt.Errorf("record ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.balances[r.RecordID] = &cp
	return nil
}

func (m *MemoryBalances) ListByAccount(ctx context.Context, accountID string) ([]*domain.BalanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.BalanceRecord
	for _, r := range m.balances {
		if r.AccountID != accountID {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].RecordID < result[j].RecordID
	})
	return result, nil
}

var _ Balances = (*MemoryBalances)(nil)

// MemoryArtifacts is an in-memory Artifacts implementation.
type MemoryArtifacts struct {
	mu        sync.RWMutex
	artifacts map[string]*domain.ParseArtifact
}

// NewMemoryArtifacts creates an empty in-memory artifact store.
func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{artifacts: make(map[string]*domain.ParseArtifact)}
}

func (m *MemoryArtifacts) Insert(ctx context.Context, a *domain.ParseArtifact) error {
	if a.ID == "" {
		return fmt.Errorf("artifact ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.artifacts[a.ID] = &cp
	return nil
}

func (m *MemoryArtifacts) ListBySession(ctx context.Context, sessionID string) ([]*domain.ParseArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.ParseArtifact
	for _, a := range m.artifacts {
		if a.SessionID != sessionID {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedTS.Before(result[j].StartedTS)
	})
	return result, nil
}

var _ Artifacts = (*MemoryArtifacts)(nil)
