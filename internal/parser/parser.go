package parser

import (
	"context"

	"github.com/dvloznov/statement-engine/internal/domain"
)

// Level identifies a parsing strategy, ordered by cost.
type Level string

const (
	// LevelColumnar reads CSV and XLSX documents through a column mapping.
	LevelColumnar Level = "columnar"
	// LevelPattern applies ordered named-capture regexes to text extracted
	// from a PDF.
	LevelPattern Level = "pattern"
	// LevelAI sends the raw document to the model. Last resort, highest cost.
	LevelAI Level = "ai"
)

// Document is the input to a parser level: the raw bytes plus everything the
// strategy needs to interpret them.
type Document struct {
	Bytes    []byte
	FileType domain.FileType
	Filename string

	// Password unlocks an encrypted PDF. Empty means none supplied yet.
	Password string

	// Mapping overrides header inference for columnar documents. Nil means
	// infer from header names.
	Mapping *ColumnMapping
}

// Canonical field keys produced by every parser level. The normalizer only
// understands these.
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldCurrency    = "currency"
	FieldType        = "type"       // credit/debit hint when the source has one
	FieldConfidence  = "confidence" // model confidence, AI level only
)

// RawRow is one extracted field-value row. Index preserves source document
// order across the whole pipeline.
type RawRow struct {
	Index  int
	Line   int // 1-based source line or sheet row, 0 when not applicable
	Fields map[string]string
}

// Result is the outcome of running one parser level.
type Result struct {
	Level Level
	Rows  []RawRow

	// UnparsedLines are source lines the level could not interpret. They
	// drive the escalation decision and are retained for manual correction.
	UnparsedLines []string
}

// UnparsedRatio is the proportion of lines the level failed on. A level that
// saw nothing at all reports 1.
func (r *Result) UnparsedRatio() float64 {
	total := len(r.Rows) + len(r.UnparsedLines)
	if total == 0 {
		return 1
	}
	return float64(len(r.UnparsedLines)) / float64(total)
}

// Parser is one level of the progressive parsing strategy.
type Parser interface {
	// Level identifies the strategy for artifact records and escalation.
	Level() Level

	// Applicable reports whether the strategy can make sense of the file
	// type at all, before any bytes are inspected.
	Applicable(ft domain.FileType) bool

	// Parse turns document bytes into raw rows. It returns ErrPasswordRequired
	// for encrypted documents, ErrMalformedDocument for undecodable ones.
	Parse(ctx context.Context, doc Document) (*Result, error)
}
