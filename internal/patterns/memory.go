package patterns

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/google/uuid"
)

const (
	// initialConfidence is assigned to a freshly learned, unconfirmed pattern.
	initialConfidence = 0.30

	// reinforceAlpha is the EMA step for Reinforce: confirmed moves
	// confidence toward 1, rejected toward 0.
	reinforceAlpha = 0.30

	// useNudge is the small upward drift applied on each reuse.
	useNudge = 0.02
)

// MemoryStore is an in-memory Store implementation guarded by a RWMutex.
// It is safe for concurrent sessions; data is lost on restart unless it is
// seeded from and flushed to a persistent repository.
type MemoryStore struct {
	mu       sync.RWMutex
	patterns map[string]*domain.MerchantPattern
	// usedBy makes RecordUse idempotent per (pattern, candidate).
	usedBy map[string]map[string]bool
}

// NewMemoryStore creates an empty in-memory pattern store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patterns: make(map[string]*domain.MerchantPattern),
		usedBy:   make(map[string]map[string]bool),
	}
}

// Seed loads previously persisted patterns, replacing the current contents.
func (s *MemoryStore) Seed(rows []*domain.MerchantPattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = make(map[string]*domain.MerchantPattern, len(rows))
	for _, p := range rows {
		cp := *p
		s.patterns[p.PatternID] = &cp
	}
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(ctx context.Context, description string) (*domain.MerchantPattern, bool) {
	norm := NormalizeDescription(description)
	if norm == "" {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.MerchantPattern
	bestLen := -1
	for _, p := range s.patterns {
		if !p.IsActive {
			continue
		}
		matchLen, ok := Matches(p, norm)
		if !ok {
			continue
		}
		if best == nil || matchLen > bestLen ||
			(matchLen == bestLen && p.Confidence > best.Confidence) ||
			(matchLen == bestLen && p.Confidence == best.Confidence && p.LastUsedTS.After(best.LastUsedTS)) {
			best = p
			bestLen = matchLen
		}
	}
	if best == nil {
		return nil, false
	}
	cp := *best
	return &cp, true
}

// Learn implements Store.
func (s *MemoryStore) Learn(ctx context.Context, pattern, merchantName, categoryName string) (*domain.MerchantPattern, error) {
	norm := NormalizeDescription(pattern)
	if norm == "" {
		return nil, fmt.Errorf("empty pattern")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.patterns {
		if p.IsActive && NormalizeDescription(p.Pattern) == norm && p.CategoryName == categoryName {
			cp := *p
			return &cp, nil
		}
	}

	now := time.Now()
	p := &domain.MerchantPattern{
		PatternID:    uuid.NewString(),
		Pattern:      norm,
		PatternType:  domain.PatternContains,
		MerchantName: merchantName,
		CategoryName: categoryName,
		Confidence:   initialConfidence,
		UsageCount:   0,
		LastUsedTS:   now,
		CreatedTS:    now,
		IsActive:     true,
	}
	s.patterns[p.PatternID] = p
	cp := *p
	return &cp, nil
}

// RecordUse implements Store.
func (s *MemoryStore) RecordUse(ctx context.Context, patternID, candidateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[patternID]
	if !ok {
		return fmt.Errorf("pattern not found: %s", patternID)
	}
	if s.usedBy[patternID] == nil {
		s.usedBy[patternID] = make(map[string]bool)
	}
	if s.usedBy[patternID][candidateID] {
		return nil // already counted, retries are no-ops
	}
	s.usedBy[patternID][candidateID] = true

	p.UsageCount++
	p.LastUsedTS = time.Now()
	p.Confidence = clamp01(p.Confidence + useNudge*(1-p.Confidence))
	return nil
}

// Reinforce implements Store.
func (s *MemoryStore) Reinforce(ctx context.Context, patternID string, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[patternID]
	if !ok {
		return fmt.Errorf("pattern not found: %s", patternID)
	}
	if confirmed {
		p.Confidence = clamp01(p.Confidence + reinforceAlpha*(1-p.Confidence))
		p.IsUserConfirmed = true
	} else {
		p.Confidence = clamp01(p.Confidence * (1 - reinforceAlpha))
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, patternID string) (*domain.MerchantPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[patternID]
	if !ok {
		return nil, fmt.Errorf("pattern not found: %s", patternID)
	}
	cp := *p
	return &cp, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]*domain.MerchantPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.MerchantPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedTS.After(result[j].CreatedTS)
	})
	return result, nil
}

// Deactivate implements Store.
func (s *MemoryStore) Deactivate(ctx context.Context, patternID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[patternID]
	if !ok {
		return fmt.Errorf("pattern not found: %s", patternID)
	}
	p.IsActive = false
	return nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Ensure MemoryStore implements the Store interface.
var _ Store = (*MemoryStore)(nil)
