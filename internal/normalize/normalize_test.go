package normalize

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/parser"
	"github.com/dvloznov/statement-engine/internal/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawResult(level parser.Level, fieldSets ...map[string]string) *parser.Result {
	r := &parser.Result{Level: level}
	for i, fields := range fieldSets {
		r.Rows = append(r.Rows, parser.RawRow{Index: i, Fields: fields})
	}
	return r
}

func TestNormalize_BasicRow(t *testing.T) {
	n := New(patterns.NewMemoryStore(), "GBP")
	result := rawResult(parser.LevelColumnar, map[string]string{
		parser.FieldDate:        "2024-01-05",
		parser.FieldDescription: "  STARBUCKS   #123 ",
		parser.FieldAmount:      "-4.50",
	})

	cands := n.Normalize(context.Background(), "sess-1", result)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, domain.ImportPending, c.ImportStatus)
	assert.Equal(t, "sess-1", c.SessionID)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 5}, c.Date)
	assert.Equal(t, domain.Amount(-450), c.Amount)
	assert.False(t, c.IsCredit)
	assert.Equal(t, "STARBUCKS #123", c.Description)
	assert.Equal(t, "GBP", c.Currency)
	assert.NotEmpty(t, c.CandidateID)
}

func TestNormalize_DateLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want civil.Date
	}{
		{"2024-01-05", civil.Date{Year: 2024, Month: 1, Day: 5}},
		{"05/01/2024", civil.Date{Year: 2024, Month: 1, Day: 5}},
		{"5/1/2024", civil.Date{Year: 2024, Month: 1, Day: 5}},
		{"05 Jan 2024", civil.Date{Year: 2024, Month: 1, Day: 5}},
		{"5 January 2024", civil.Date{Year: 2024, Month: 1, Day: 5}},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestNormalize_DirectionHintWinsOverSign(t *testing.T) {
	n := New(nil, "GBP")
	result := rawResult(parser.LevelColumnar,
		map[string]string{
			parser.FieldDate:        "2024-01-05",
			parser.FieldDescription: "PAID OUT MAGNITUDE",
			parser.FieldAmount:      "4.50",
			parser.FieldType:        "debit",
		},
		map[string]string{
			parser.FieldDate:        "2024-01-06",
			parser.FieldDescription: "REFUND",
			parser.FieldAmount:      "-4.50",
			parser.FieldType:        "credit",
		},
	)

	cands := n.Normalize(context.Background(), "sess-1", result)
	require.Len(t, cands, 2)
	assert.Equal(t, domain.Amount(-450), cands[0].Amount)
	assert.False(t, cands[0].IsCredit)
	assert.Equal(t, domain.Amount(450), cands[1].Amount)
	assert.True(t, cands[1].IsCredit)
}

func TestNormalize_FailedRowsKeepPlace(t *testing.T) {
	n := New(nil, "GBP")
	result := rawResult(parser.LevelColumnar,
		map[string]string{
			parser.FieldDate:        "2024-01-05",
			parser.FieldDescription: "GOOD",
			parser.FieldAmount:      "-1.00",
		},
		map[string]string{
			parser.FieldDate:        "not a date",
			parser.FieldDescription: "",
			parser.FieldAmount:      "??",
		},
	)

	cands := n.Normalize(context.Background(), "sess-1", result)
	require.Len(t, cands, 2)

	assert.Equal(t, domain.ImportPending, cands[0].ImportStatus)
	bad := cands[1]
	assert.Equal(t, domain.ImportFailed, bad.ImportStatus)
	assert.Equal(t, 1, bad.RowIndex)
	assert.Len(t, bad.Errors, 3)
	assert.Equal(t, "??", bad.RawFields[parser.FieldAmount])
}

func TestNormalize_ZeroAmountRejected(t *testing.T) {
	n := New(nil, "GBP")
	result := rawResult(parser.LevelColumnar, map[string]string{
		parser.FieldDate:        "2024-01-05",
		parser.FieldDescription: "BALANCE LINE",
		parser.FieldAmount:      "0.00",
	})
	cands := n.Normalize(context.Background(), "sess-1", result)
	require.Len(t, cands, 1)
	assert.Equal(t, domain.ImportFailed, cands[0].ImportStatus)
}

func TestNormalize_AmbiguousSignFails(t *testing.T) {
	// No sign on the amount and no direction column: the row's direction
	// cannot be known, so it fails rather than guessing.
	n := New(nil, "GBP")
	result := rawResult(parser.LevelColumnar, map[string]string{
		parser.FieldDate:        "2024-01-05",
		parser.FieldDescription: "MYSTERY ROW",
		parser.FieldAmount:      "4.50",
	})
	cands := n.Normalize(context.Background(), "sess-1", result)
	require.Len(t, cands, 1)
	assert.Equal(t, domain.ImportFailed, cands[0].ImportStatus)
	require.Len(t, cands[0].Errors, 1)
	assert.Contains(t, cands[0].Errors[0], "ambiguous amount")
}

func TestNormalize_ExplicitSignsAccepted(t *testing.T) {
	n := New(nil, "GBP")
	result := rawResult(parser.LevelColumnar,
		map[string]string{
			parser.FieldDate:        "2024-01-05",
			parser.FieldDescription: "PLUS SIGN",
			parser.FieldAmount:      "+4.50",
		},
		map[string]string{
			parser.FieldDate:        "2024-01-05",
			parser.FieldDescription: "PARENTHESES",
			parser.FieldAmount:      "(4.50)",
		},
		map[string]string{
			parser.FieldDate:        "2024-01-05",
			parser.FieldDescription: "TRAILING MINUS",
			parser.FieldAmount:      "4.50-",
		},
	)
	cands := n.Normalize(context.Background(), "sess-1", result)
	require.Len(t, cands, 3)
	assert.Equal(t, domain.Amount(450), cands[0].Amount)
	assert.Equal(t, domain.Amount(-450), cands[1].Amount)
	assert.Equal(t, domain.Amount(-450), cands[2].Amount)
}

func TestNormalize_PatternAssignsCategory(t *testing.T) {
	store := patterns.NewMemoryStore()
	p, err := store.Learn(context.Background(), "STARBUCKS", "Starbucks", "Coffee")
	require.NoError(t, err)
	require.NoError(t, store.Reinforce(context.Background(), p.PatternID, true))

	n := New(store, "GBP")
	result := rawResult(parser.LevelColumnar, map[string]string{
		parser.FieldDate:        "2024-02-01",
		parser.FieldDescription: "STARBUCKS #456",
		parser.FieldAmount:      "-5.25",
	})

	cands := n.Normalize(context.Background(), "sess-2", result)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, "Starbucks", c.MerchantName)
	assert.Equal(t, "Coffee", c.CategoryName)
	assert.Equal(t, p.PatternID, c.PatternID)
	assert.Greater(t, c.CategoryConfidence, 0.3)

	got, err := store.Get(context.Background(), p.PatternID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsageCount)
}

func TestNormalize_AICategoryFallback(t *testing.T) {
	store := patterns.NewMemoryStore()
	n := New(store, "GBP")
	result := rawResult(parser.LevelAI, map[string]string{
		parser.FieldDate:        "2024-02-01",
		parser.FieldDescription: "UNKNOWN MERCHANT LTD",
		parser.FieldAmount:      "-12.00",
		parser.FieldConfidence:  "0.85",
		"category":              "Shopping",
	})

	cands := n.Normalize(context.Background(), "sess-3", result)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, "Shopping", c.CategoryName)
	assert.Equal(t, 0.85, c.ModelConfidence)
	assert.Equal(t, 0.85, c.CategoryConfidence)

	// The model's suggestion is also captured as a tentative pattern.
	require.NotEmpty(t, c.PatternID)
	p, err := store.Get(context.Background(), c.PatternID)
	require.NoError(t, err)
	assert.Equal(t, "Shopping", p.CategoryName)
	assert.False(t, p.IsUserConfirmed)
}

func TestNormalize_LearnsTentativePattern(t *testing.T) {
	store := patterns.NewMemoryStore()
	n := New(store, "GBP")
	result := rawResult(parser.LevelColumnar, map[string]string{
		parser.FieldDate:        "2024-02-01",
		parser.FieldDescription: "STARBUCKS COFFEE 123",
		parser.FieldAmount:      "-4.50",
	})

	cands := n.Normalize(context.Background(), "sess-1", result)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, "STARBUCKS COFFEE", c.MerchantName)
	require.NotEmpty(t, c.PatternID)

	p, err := store.Get(context.Background(), c.PatternID)
	require.NoError(t, err)
	assert.Equal(t, "STARBUCKS COFFEE", p.Pattern)
	assert.InDelta(t, 0.30, p.Confidence, 0.05)
	assert.False(t, p.IsUserConfirmed)
	assert.Equal(t, int64(1), p.UsageCount)

	// The next statement from the same merchant hits the learned pattern.
	again := n.Normalize(context.Background(), "sess-2", rawResult(parser.LevelColumnar, map[string]string{
		parser.FieldDate:        "2024-02-08",
		parser.FieldDescription: "STARBUCKS COFFEE 456",
		parser.FieldAmount:      "-5.25",
	}))
	require.Len(t, again, 1)
	assert.Equal(t, p.PatternID, again[0].PatternID)
}

func TestMerchantToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"STARBUCKS COFFEE 123", "STARBUCKS COFFEE"},
		{"STARBUCKS #123", "STARBUCKS"},
		{"TESCO STORES 3297 LONDON GB", "TESCO STORES"},
		{"M&S SIMPLY FOOD", "M&S SIMPLY FOOD"},
		{"123456 REF ONLY", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, merchantToken(tt.in), "input %q", tt.in)
	}
}

func TestNormalize_BadModelConfidence(t *testing.T) {
	n := New(nil, "GBP")
	result := rawResult(parser.LevelAI, map[string]string{
		parser.FieldDate:        "2024-02-01",
		parser.FieldDescription: "X",
		parser.FieldAmount:      "-1.00",
		parser.FieldConfidence:  "1.7",
	})
	cands := n.Normalize(context.Background(), "sess-4", result)
	require.Len(t, cands, 1)
	assert.Equal(t, domain.ImportFailed, cands[0].ImportStatus)
}

func TestNormalize_CurrencyFromRow(t *testing.T) {
	n := New(nil, "GBP")
	result := rawResult(parser.LevelColumnar, map[string]string{
		parser.FieldDate:        "2024-02-01",
		parser.FieldDescription: "EURO CHARGE",
		parser.FieldAmount:      "-9.99",
		parser.FieldCurrency:    "eur",
	})
	cands := n.Normalize(context.Background(), "sess-5", result)
	require.Len(t, cands, 1)
	assert.Equal(t, "EUR", cands[0].Currency)
}
