package parser

import (
	"context"
	"testing"

	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCategories []string

func (c staticCategories) ListCategoryNames(ctx context.Context) ([]string, error) {
	return c, nil
}

func TestAIParser_ParsesModelRows(t *testing.T) {
	modelOut := `[
		{"date":"2024-01-05","description":"STARBUCKS #123","amount":-4.5,"currency":"GBP","type":"debit","category":"Coffee","confidence":0.95},
		{"date":"2024-01-06","description":"SALARY","amount":1500,"currency":"GBP","type":"credit","category":"","confidence":0.99}
	]`

	p := NewAIParserWith(staticCategories{"Coffee", "Groceries"},
		func(ctx context.Context, prompt string, doc Document) (string, error) {
			return modelOut, nil
		})

	result, err := p.Parse(context.Background(), Document{FileType: domain.FileTypePDF})
	require.NoError(t, err)
	assert.Equal(t, LevelAI, result.Level)
	require.Len(t, result.Rows, 2)

	first := result.Rows[0]
	assert.Equal(t, "2024-01-05", first.Fields[FieldDate])
	assert.Equal(t, "STARBUCKS #123", first.Fields[FieldDescription])
	assert.Equal(t, "-4.50", first.Fields[FieldAmount])
	assert.Equal(t, "0.95", first.Fields[FieldConfidence])
	assert.Equal(t, "debit", first.Fields[FieldType])
	assert.Equal(t, "Coffee", first.Fields["category"])

	// Empty optional fields are omitted rather than stored blank.
	_, hasCategory := result.Rows[1].Fields["category"]
	assert.False(t, hasCategory)
}

func TestAIParser_StripsCodeFences(t *testing.T) {
	modelOut := "```json\n[{\"date\":\"2024-01-05\",\"description\":\"X\",\"amount\":-1,\"confidence\":0.8}]\n```"

	p := NewAIParserWith(nil, func(ctx context.Context, prompt string, doc Document) (string, error) {
		return modelOut, nil
	})
	result, err := p.Parse(context.Background(), Document{FileType: domain.FileTypePDF})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
}

func TestAIParser_MalformedOutput(t *testing.T) {
	p := NewAIParserWith(nil, func(ctx context.Context, prompt string, doc Document) (string, error) {
		return "sorry, I cannot parse this document", nil
	})
	_, err := p.Parse(context.Background(), Document{FileType: domain.FileTypePDF})
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestAIParser_PromptCarriesCategories(t *testing.T) {
	var seen string
	p := NewAIParserWith(staticCategories{"Coffee", "Transport"},
		func(ctx context.Context, prompt string, doc Document) (string, error) {
			seen = prompt
			return "[]", nil
		})
	_, err := p.Parse(context.Background(), Document{FileType: domain.FileTypeCSV})
	require.NoError(t, err)
	assert.Contains(t, seen, "Coffee")
	assert.Contains(t, seen, "Transport")
	assert.Contains(t, seen, "STRICT JSON")
}

func TestAIParser_ApplicableToEverything(t *testing.T) {
	p := NewAIParserWith(nil, nil)
	for _, ft := range []domain.FileType{
		domain.FileTypeCSV, domain.FileTypeXLSX, domain.FileTypePDF, domain.FileTypeImage,
	} {
		assert.True(t, p.Applicable(ft), "file type %s", ft)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `[{"a":1}]`, `[{"a":1}]`},
		{"fenced", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"fenced no lang", "```\n[]\n```", `[]`},
		{"leading prose", "Here you go: [1,2]", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.in))
		})
	}
}
