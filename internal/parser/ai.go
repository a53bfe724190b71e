package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/statement-engine/internal/domain"
	"google.golang.org/genai"
)

// DefaultModelName is the model used by the AI parser level.
const DefaultModelName = "gemini-2.5-flash"

// CategorySource supplies the category vocabulary the model is allowed to
// use. The pattern store is the production source; tests supply a literal.
type CategorySource interface {
	ListCategoryNames(ctx context.Context) ([]string, error)
}

// generateFunc is the seam between the AI parser and the model call, so the
// expensive capability can be mocked in tests.
type generateFunc func(ctx context.Context, prompt string, doc Document) (string, error)

// AIParser is the last-resort, highest-cost parsing level: it hands the raw
// document to the model and expects strict JSON rows tagged with confidence.
type AIParser struct {
	modelName  string
	categories CategorySource
	generate   generateFunc
}

// NewAIParser creates the AI (level 3) parser backed by the GenAI client.
func NewAIParser(categories CategorySource) *AIParser {
	p := &AIParser{
		modelName:  DefaultModelName,
		categories: categories,
	}
	p.generate = p.generateContent
	return p
}

// NewAIParserWith creates an AI parser with a custom generate function.
// Intended for tests.
func NewAIParserWith(categories CategorySource, generate generateFunc) *AIParser {
	return &AIParser{modelName: DefaultModelName, categories: categories, generate: generate}
}

// Level implements Parser.
func (p *AIParser) Level() Level { return LevelAI }

// Applicable implements Parser. The model can read everything the engine
// accepts; cost, not capability, keeps it last.
func (p *AIParser) Applicable(ft domain.FileType) bool {
	switch ft {
	case domain.FileTypeCSV, domain.FileTypeXLSX, domain.FileTypePDF, domain.FileTypeImage:
		return true
	}
	return false
}

// Parse implements Parser.
func (p *AIParser) Parse(ctx context.Context, doc Document) (*Result, error) {
	prompt, err := p.buildPrompt(ctx)
	if err != nil {
		return nil, err
	}

	rawText, err := p.generate(ctx, prompt, doc)
	if err != nil {
		return nil, fmt.Errorf("ai parse: %w", err)
	}
	if rawText == "" {
		return nil, fmt.Errorf("ai parse: empty response from model")
	}

	clean := cleanModelJSON(rawText)

	var rows []aiRow
	if err := json.Unmarshal([]byte(clean), &rows); err != nil {
		return nil, fmt.Errorf("%w: model output is not a JSON array: %v", ErrMalformedDocument, err)
	}

	result := &Result{Level: LevelAI}
	for _, row := range rows {
		fields := map[string]string{
			FieldDate:        row.Date,
			FieldDescription: row.Description,
			FieldAmount:      strconv.FormatFloat(row.Amount, 'f', 2, 64),
			FieldConfidence:  strconv.FormatFloat(row.Confidence, 'f', 2, 64),
		}
		if row.Currency != "" {
			fields[FieldCurrency] = row.Currency
		}
		if row.Type != "" {
			fields[FieldType] = canonicalDirection(row.Type)
		}
		if row.Category != "" {
			fields["category"] = row.Category
		}
		result.Rows = append(result.Rows, RawRow{
			Index:  len(result.Rows),
			Fields: fields,
		})
	}
	return result, nil
}

// aiRow mirrors the JSON object shape the prompt demands.
type aiRow struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
}

func (p *AIParser) buildPrompt(ctx context.Context) (string, error) {
	basePrompt :=
		"You are a financial statement parser.\n\n" +
			"Task:\n" +
			"- Parse ALL transactions in the attached statement document.\n" +
			"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
			"- Output a JSON array of objects.\n\n" +
			"Each object must have these fields:\n" +
			"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
			"- \"description\": string\n" +
			"- \"amount\": number (positive for money IN, negative for money OUT)\n" +
			"- \"currency\": string (e.g. \"GBP\") or \"\" if not shown\n" +
			"- \"type\": \"credit\" or \"debit\"\n" +
			"- \"category\": string (one of the allowed categories, or \"\")\n" +
			"- \"confidence\": number in [0,1], your certainty for this row\n\n"

	catPrompt := ""
	if p.categories != nil {
		names, err := p.categories.ListCategoryNames(ctx)
		if err != nil {
			return "", fmt.Errorf("ai parse: listing categories: %w", err)
		}
		if len(names) > 0 {
			catPrompt = "Allowed categories:\n- " + strings.Join(names, "\n- ") + "\n\n"
		}
	}

	rulesPrompt :=
		"Rules:\n" +
			"- If the statement has separate \"paid out\" / \"paid in\" columns, convert to a single signed \"amount\".\n" +
			"- Lower the confidence for rows where OCR or layout made you guess.\n" +
			"Return ONLY valid raw JSON.\n" +
			"Do NOT wrap the response in code fences.\n" +
			"Do NOT use ```json or any Markdown.\n" +
			"Output must begin with \"[\" and end with \"]\".\n"

	return basePrompt + catPrompt + rulesPrompt, nil
}

// generateContent performs the real model call with the document inlined.
func (p *AIParser) generateContent(ctx context.Context, prompt string, doc Document) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}

	parts := []*genai.Part{{Text: prompt}}
	switch doc.FileType {
	case domain.FileTypeCSV:
		parts = append(parts, &genai.Part{Text: string(doc.Bytes)})
	case domain.FileTypePDF:
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "application/pdf", Data: doc.Bytes},
		})
	default:
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: http.DetectContentType(doc.Bytes), Data: doc.Bytes},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := client.Models.GenerateContent(ctx, p.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}

// cleanModelJSON strips Markdown fences and surrounding junk when the model
// ignored the strict-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Extra safety: keep only from the first '[' to the last ']'.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

var _ Parser = (*AIParser)(nil)
