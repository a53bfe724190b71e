package patterns

import (
	"context"
	"testing"

	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_MostSpecificWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	short, err := store.Learn(ctx, "STAR", "Star", "Misc")
	require.NoError(t, err)
	long, err := store.Learn(ctx, "STARBUCKS", "Starbucks", "Coffee")
	require.NoError(t, err)

	got, ok := store.Lookup(ctx, "starbucks #123 london")
	require.True(t, ok)
	assert.Equal(t, long.PatternID, got.PatternID, "longest pattern should win over %s", short.PatternID)
	assert.Equal(t, "Coffee", got.CategoryName)
}

func TestLookup_TieBreaksByConfidence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, err := store.Learn(ctx, "TESCO", "Tesco", "Groceries")
	require.NoError(t, err)
	b, err := store.Learn(ctx, "TESCO", "Tesco", "Fuel") // same length, different category
	require.NoError(t, err)

	require.NoError(t, store.Reinforce(ctx, b.PatternID, true))

	got, ok := store.Lookup(ctx, "TESCO STORES 3141")
	require.True(t, ok)
	assert.Equal(t, b.PatternID, got.PatternID)
	assert.NotEqual(t, a.PatternID, got.PatternID)
}

func TestLookup_NoMatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Learn(ctx, "STARBUCKS", "Starbucks", "Coffee")
	require.NoError(t, err)

	_, ok := store.Lookup(ctx, "GREGGS BAKERY")
	assert.False(t, ok)

	_, ok = store.Lookup(ctx, "   ")
	assert.False(t, ok)
}

func TestLearn_NoDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.Learn(ctx, "starbucks", "Starbucks", "Coffee")
	require.NoError(t, err)
	second, err := store.Learn(ctx, "STARBUCKS  ", "Starbucks", "Coffee")
	require.NoError(t, err)

	assert.Equal(t, first.PatternID, second.PatternID)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReinforce_ConfidenceMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p, err := store.Learn(ctx, "STARBUCKS", "Starbucks", "Coffee")
	require.NoError(t, err)

	prev := p.Confidence
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Reinforce(ctx, p.PatternID, true))
		cur, err := store.Get(ctx, p.PatternID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cur.Confidence, prev, "confirmation %d must not lower confidence", i)
		assert.LessOrEqual(t, cur.Confidence, 1.0)
		prev = cur.Confidence
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Reinforce(ctx, p.PatternID, false))
		cur, err := store.Get(ctx, p.PatternID)
		require.NoError(t, err)
		assert.LessOrEqual(t, cur.Confidence, prev, "rejection %d must not raise confidence", i)
		assert.GreaterOrEqual(t, cur.Confidence, 0.0)
		prev = cur.Confidence
	}
}

func TestReinforce_ConfirmSetsUserConfirmed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p, err := store.Learn(ctx, "STARBUCKS", "Starbucks", "Coffee")
	require.NoError(t, err)
	assert.False(t, p.IsUserConfirmed)

	require.NoError(t, store.Reinforce(ctx, p.PatternID, true))
	got, err := store.Get(ctx, p.PatternID)
	require.NoError(t, err)
	assert.True(t, got.IsUserConfirmed)
}

func TestRecordUse_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p, err := store.Learn(ctx, "STARBUCKS", "Starbucks", "Coffee")
	require.NoError(t, err)

	require.NoError(t, store.RecordUse(ctx, p.PatternID, "cand-1"))
	require.NoError(t, store.RecordUse(ctx, p.PatternID, "cand-1")) // retry
	require.NoError(t, store.RecordUse(ctx, p.PatternID, "cand-2"))

	got, err := store.Get(ctx, p.PatternID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UsageCount)
}

func TestDeactivate_PatternNoLongerMatches(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p, err := store.Learn(ctx, "STARBUCKS", "Starbucks", "Coffee")
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, p.PatternID))

	_, ok := store.Lookup(ctx, "STARBUCKS #456")
	assert.False(t, ok)

	// Still present for audit.
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
}

func TestMatches_PatternTypes(t *testing.T) {
	tests := []struct {
		name        string
		patternType domain.PatternType
		pattern     string
		description string
		want        bool
	}{
		{"exact hit", domain.PatternExact, "STARBUCKS", "STARBUCKS", true},
		{"exact miss on extra text", domain.PatternExact, "STARBUCKS", "STARBUCKS #123", false},
		{"prefix hit", domain.PatternPrefix, "STARBUCKS", "STARBUCKS #123", true},
		{"prefix miss mid-string", domain.PatternPrefix, "STARBUCKS", "CARD STARBUCKS", false},
		{"contains hit mid-string", domain.PatternContains, "STARBUCKS", "CARD STARBUCKS LONDON", true},
		{"contains miss", domain.PatternContains, "STARBUCKS", "GREGGS", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &domain.MerchantPattern{Pattern: tt.pattern, PatternType: tt.patternType}
			_, got := Matches(p, NormalizeDescription(tt.description))
			assert.Equal(t, tt.want, got)
		})
	}
}
