package patterns

import (
	"context"
	"strings"

	"github.com/dvloznov/statement-engine/internal/domain"
)

// Store is the merchant/category pattern learning store. It is the only
// state shared across concurrently processed sessions, so implementations
// must be safe for concurrent readers and writers.
//
// The store is append-only: a correction creates a new pattern instead of
// rewriting an old one, and retired patterns are deactivated, never deleted.
type Store interface {
	// Lookup returns the best active pattern matching the description, or
	// false when nothing matches. The most specific (longest) pattern wins;
	// ties break by highest confidence, then by most recent use.
	Lookup(ctx context.Context, description string) (*domain.MerchantPattern, bool)

	// Learn records a tentative pattern observed during a parse. If an
	// equivalent active pattern already exists it is returned instead of
	// creating a duplicate.
	Learn(ctx context.Context, pattern, merchantName, categoryName string) (*domain.MerchantPattern, error)

	// RecordUse bumps usage statistics after a candidate adopted the pattern.
	// The increment is idempotent per candidate and safe to retry.
	RecordUse(ctx context.Context, patternID, candidateID string) error

	// Reinforce moves confidence toward 1 when confirmed, toward 0 when
	// rejected. Confirmation also marks the pattern user-confirmed.
	Reinforce(ctx context.Context, patternID string, confirmed bool) error

	// Get returns a pattern by ID.
	Get(ctx context.Context, patternID string) (*domain.MerchantPattern, error)

	// List returns all patterns, active and inactive, newest first.
	List(ctx context.Context) ([]*domain.MerchantPattern, error)

	// Deactivate retires a pattern without deleting it.
	Deactivate(ctx context.Context, patternID string) error
}

// NormalizeDescription prepares a transaction description for pattern
// matching: uppercase, collapsed whitespace.
func NormalizeDescription(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// Matches reports whether the pattern applies to the normalized description,
// and the matched length used as the specificity tiebreaker.
func Matches(p *domain.MerchantPattern, normalizedDesc string) (int, bool) {
	pat := NormalizeDescription(p.Pattern)
	if pat == "" {
		return 0, false
	}
	switch p.PatternType {
	case domain.PatternExact:
		if normalizedDesc == pat {
			return len(pat), true
		}
	case domain.PatternPrefix:
		if strings.HasPrefix(normalizedDesc, pat) {
			return len(pat), true
		}
	case domain.PatternContains:
		if strings.Contains(normalizedDesc, pat) {
			return len(pat), true
		}
	}
	return 0, false
}
