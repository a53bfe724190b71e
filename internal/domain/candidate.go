package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// ImportStatus represents the review state of a transaction import candidate.
type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportImported  ImportStatus = "imported"
	ImportDuplicate ImportStatus = "duplicate"
	ImportFailed    ImportStatus = "failed"
	ImportSkipped   ImportStatus = "skipped"
)

// Candidate is one not-yet-committed transaction row produced by a parser and
// normalized by the normalizer. Candidates are scoped to one upload session,
// preserve source document order through RowIndex, and are never mutated
// after commit.
type Candidate struct {
	CandidateID string `json:"candidate_id"`
	SessionID   string `json:"session_id"`
	RowIndex    int    `json:"row_index"`

	ImportStatus ImportStatus `json:"import_status"`

	// RawFields is the parser's field map for this row, kept verbatim for
	// audit and manual correction.
	RawFields map[string]string `json:"raw_fields,omitempty"`

	Date        civil.Date `json:"date"`
	Amount      Amount     `json:"amount"`
	Currency    string     `json:"currency"`
	Description string     `json:"description"`
	IsCredit    bool       `json:"is_credit"`

	CategoryName       string  `json:"category_name,omitempty"`
	CategoryConfidence float64 `json:"category_confidence"`

	MerchantName string `json:"merchant_name,omitempty"`
	PatternID    string `json:"pattern_id,omitempty"`

	// ModelConfidence is set only for rows produced by the AI parser level.
	ModelConfidence float64 `json:"model_confidence,omitempty"`

	// TransactionID links to the committed transaction once imported.
	TransactionID string `json:"transaction_id,omitempty"`

	// Errors holds human-readable validation failures. A candidate with
	// errors is marked failed but still appears in the candidate set.
	Errors []string `json:"errors,omitempty"`

	CreatedTS time.Time `json:"created_ts"`
}

// Transaction is the committed financial record produced by the pipeline.
// Every transaction either originates from manual entry (empty
// SourceCandidateID) or traces to exactly one import candidate.
type Transaction struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	AccountID     string `json:"account_id"`

	Date        civil.Date `json:"date"`
	Amount      Amount     `json:"amount"`
	Currency    string     `json:"currency"`
	Description string     `json:"description"`
	IsCredit    bool       `json:"is_credit"`

	CategoryName string `json:"category_name,omitempty"`
	MerchantName string `json:"merchant_name,omitempty"`

	SourceCandidateID string `json:"source_candidate_id,omitempty"`
	SessionID         string `json:"session_id,omitempty"`

	CreatedTS time.Time `json:"created_ts"`
}
