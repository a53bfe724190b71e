package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ColumnMapping binds statement columns to canonical fields by header name.
// Date, Description and either Amount or the Debit/Credit pair are mandatory;
// the rest are optional.
type ColumnMapping struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount,omitempty"`

	// Debit and Credit handle statements with separate paid-out / paid-in
	// columns, folded into a single signed amount.
	Debit  string `json:"debit,omitempty"`
	Credit string `json:"credit,omitempty"`

	Currency string `json:"currency,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Complete reports whether the mandatory fields are mapped.
func (m *ColumnMapping) Complete() bool {
	if m.Date == "" || m.Description == "" {
		return false
	}
	return m.Amount != "" || (m.Debit != "" && m.Credit != "")
}

// headerSynonyms drive mapping inference when the caller supplies none.
// Matching is case-insensitive on the trimmed header cell.
var headerSynonyms = map[string][]string{
	"date":        {"date", "transaction date", "posting date", "booking date", "value date"},
	"description": {"description", "details", "memo", "narrative", "transaction description", "merchant", "payee"},
	"amount":      {"amount", "value", "transaction amount"},
	"debit":       {"debit", "paid out", "money out", "withdrawal", "debit amount"},
	"credit":      {"credit", "paid in", "money in", "deposit", "credit amount"},
	"currency":    {"currency", "ccy"},
	"type":        {"type", "transaction type", "dr/cr", "direction"},
}

// ColumnarParser handles CSV and XLSX statements: the cheapest level, tried
// first whenever the file type allows it.
type ColumnarParser struct{}

// NewColumnarParser creates the columnar (level 1) parser.
func NewColumnarParser() *ColumnarParser {
	return &ColumnarParser{}
}

// Level implements Parser.
func (p *ColumnarParser) Level() Level { return LevelColumnar }

// Applicable implements Parser.
func (p *ColumnarParser) Applicable(ft domain.FileType) bool {
	return ft == domain.FileTypeCSV || ft == domain.FileTypeXLSX
}

// Parse implements Parser.
func (p *ColumnarParser) Parse(ctx context.Context, doc Document) (*Result, error) {
	var records [][]string
	var err error

	switch doc.FileType {
	case domain.FileTypeCSV:
		records, err = readCSV(doc.Bytes)
	case domain.FileTypeXLSX:
		records, err = readXLSX(doc.Bytes)
	default:
		return nil, fmt.Errorf("%w: columnar parser cannot read %s", ErrUnsupportedFileType, doc.FileType)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: document has no rows", ErrMalformedDocument)
	}

	header := records[0]
	mapping := doc.Mapping
	if mapping == nil {
		mapping = inferMapping(header)
	}
	if !mapping.Complete() {
		return nil, fmt.Errorf("%w: need date, description and amount (or debit/credit)", ErrMissingMapping)
	}

	cols, err := resolveColumns(header, mapping)
	if err != nil {
		return nil, err
	}

	result := &Result{Level: LevelColumnar}
	for i, rec := range records[1:] {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := i + 2 // 1-based, after the header
		if isBlankRecord(rec) {
			continue
		}
		fields, ok := cols.extract(rec)
		if !ok {
			result.UnparsedLines = append(result.UnparsedLines, strings.Join(rec, ","))
			continue
		}
		result.Rows = append(result.Rows, RawRow{
			Index:  len(result.Rows),
			Line:   line,
			Fields: fields,
		})
	}
	return result, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedDocument)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return rows, nil
}

// inferMapping matches header cells against the synonym table.
func inferMapping(header []string) *ColumnMapping {
	m := &ColumnMapping{}
	for _, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		for canonical, synonyms := range headerSynonyms {
			for _, syn := range synonyms {
				if name != syn {
					continue
				}
				switch canonical {
				case "date":
					if m.Date == "" {
						m.Date = cell
					}
				case "description":
					if m.Description == "" {
						m.Description = cell
					}
				case "amount":
					if m.Amount == "" {
						m.Amount = cell
					}
				case "debit":
					if m.Debit == "" {
						m.Debit = cell
					}
				case "credit":
					if m.Credit == "" {
						m.Credit = cell
					}
				case "currency":
					if m.Currency == "" {
						m.Currency = cell
					}
				case "type":
					if m.Type == "" {
						m.Type = cell
					}
				}
			}
		}
	}
	return m
}

// columnIndexes holds resolved positions; -1 means unmapped.
type columnIndexes struct {
	date, description, amount, debit, credit, currency, typ int
}

func resolveColumns(header []string, m *ColumnMapping) (*columnIndexes, error) {
	find := func(name string) int {
		if name == "" {
			return -1
		}
		for i, cell := range header {
			if strings.EqualFold(strings.TrimSpace(cell), strings.TrimSpace(name)) {
				return i
			}
		}
		return -1
	}

	cols := &columnIndexes{
		date:        find(m.Date),
		description: find(m.Description),
		amount:      find(m.Amount),
		debit:       find(m.Debit),
		credit:      find(m.Credit),
		currency:    find(m.Currency),
		typ:         find(m.Type),
	}
	if cols.date < 0 || cols.description < 0 {
		return nil, fmt.Errorf("%w: mapped columns not present in header", ErrMissingMapping)
	}
	if cols.amount < 0 && (cols.debit < 0 || cols.credit < 0) {
		return nil, fmt.Errorf("%w: mapped amount columns not present in header", ErrMissingMapping)
	}
	return cols, nil
}

// extract pulls canonical fields out of one record. Returns false when the
// record is too short or carries neither an amount nor a debit/credit value.
func (c *columnIndexes) extract(rec []string) (map[string]string, bool) {
	get := func(idx int) string {
		if idx < 0 || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	fields := map[string]string{
		FieldDate:        get(c.date),
		FieldDescription: get(c.description),
	}
	if fields[FieldDate] == "" || fields[FieldDescription] == "" {
		return nil, false
	}

	switch {
	case c.amount >= 0 && get(c.amount) != "":
		fields[FieldAmount] = get(c.amount)
	case get(c.credit) != "":
		fields[FieldAmount] = get(c.credit)
		fields[FieldType] = "credit"
	case get(c.debit) != "":
		fields[FieldAmount] = "-" + strings.TrimPrefix(get(c.debit), "-")
		fields[FieldType] = "debit"
	default:
		return nil, false
	}

	if v := get(c.currency); v != "" {
		fields[FieldCurrency] = v
	}
	if v := get(c.typ); v != "" && fields[FieldType] == "" {
		fields[FieldType] = canonicalDirection(v)
	}
	return fields, true
}

func isBlankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

var _ Parser = (*ColumnarParser)(nil)
