// Package bigquery holds the BigQuery row types shared by the persistence
// layer and the migration tooling. Rows mirror the domain types one to one;
// amounts are stored as INT64 minor units.
package bigquery

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-engine/internal/domain"
)

// SessionRow represents an upload session record in BigQuery.
type SessionRow struct {
	SessionID        string `bigquery:"session_id"`
	UserID           string `bigquery:"user_id"`
	OriginalFilename string `bigquery:"original_filename"`
	FileType         string `bigquery:"file_type"`
	ByteSize         int64  `bigquery:"byte_size"`

	Status    string `bigquery:"status"`
	AccountID string `bigquery:"account_id"`

	TotalCount      int64 `bigquery:"total_count"`
	SuccessfulCount int64 `bigquery:"successful_count"`
	FailedCount     int64 `bigquery:"failed_count"`
	DuplicateCount  int64 `bigquery:"duplicate_count"`

	StartedTS   time.Time              `bigquery:"started_ts"`
	CompletedTS bigquery.NullTimestamp `bigquery:"completed_ts"`

	ErrorMessage string `bigquery:"error_message"`

	RequiresPassword     bool  `bigquery:"requires_password"`
	PasswordAttemptsLeft int64 `bigquery:"password_attempts_left"`

	AICategorization bool `bigquery:"ai_categorization"`

	StorageURI     string `bigquery:"storage_uri"`
	ChecksumSHA256 string `bigquery:"checksum_sha256"`
}

// SessionRowFromDomain converts a domain session into its BigQuery row.
func SessionRowFromDomain(s *domain.UploadSession) *SessionRow {
	row := &SessionRow{
		SessionID:            s.SessionID,
		UserID:               s.UserID,
		OriginalFilename:     s.OriginalFilename,
		FileType:             string(s.FileType),
		ByteSize:             s.ByteSize,
		Status:               string(s.Status),
		AccountID:            s.AccountID,
		TotalCount:           int64(s.TotalCount),
		SuccessfulCount:      int64(s.SuccessfulCount),
		FailedCount:          int64(s.FailedCount),
		DuplicateCount:       int64(s.DuplicateCount),
		StartedTS:            s.StartedTS,
		ErrorMessage:         s.ErrorMessage,
		RequiresPassword:     s.RequiresPassword,
		PasswordAttemptsLeft: int64(s.PasswordAttemptsLeft),
		AICategorization:     s.AICategorization,
		StorageURI:           s.StorageURI,
		ChecksumSHA256:       s.ChecksumSHA256,
	}
	if s.CompletedTS != nil {
		row.CompletedTS = bigquery.NullTimestamp{Timestamp: *s.CompletedTS, Valid: true}
	}
	return row
}

// ToDomain converts the row back into a domain session.
func (r *SessionRow) ToDomain() *domain.UploadSession {
	s := &domain.UploadSession{
		SessionID:            r.SessionID,
		UserID:               r.UserID,
		OriginalFilename:     r.OriginalFilename,
		FileType:             domain.FileType(r.FileType),
		ByteSize:             r.ByteSize,
		Status:               domain.SessionStatus(r.Status),
		AccountID:            r.AccountID,
		TotalCount:           int(r.TotalCount),
		SuccessfulCount:      int(r.SuccessfulCount),
		FailedCount:          int(r.FailedCount),
		DuplicateCount:       int(r.DuplicateCount),
		StartedTS:            r.StartedTS,
		ErrorMessage:         r.ErrorMessage,
		RequiresPassword:     r.RequiresPassword,
		PasswordAttemptsLeft: int(r.PasswordAttemptsLeft),
		AICategorization:     r.AICategorization,
		StorageURI:           r.StorageURI,
		ChecksumSHA256:       r.ChecksumSHA256,
	}
	if r.CompletedTS.Valid {
		ts := r.CompletedTS.Timestamp
		s.CompletedTS = &ts
	}
	return s
}

// CandidateRow represents a transaction candidate record in BigQuery.
type CandidateRow struct {
	CandidateID string `bigquery:"candidate_id"`
	SessionID   string `bigquery:"session_id"`
	RowIndex    int64  `bigquery:"row_index"`

	ImportStatus string `bigquery:"import_status"`

	RawFields bigquery.NullJSON `bigquery:"raw_fields"`

	Date        civil.Date `bigquery:"date"`
	Amount      int64      `bigquery:"amount"`
	Currency    string     `bigquery:"currency"`
	Description string     `bigquery:"description"`
	IsCredit    bool       `bigquery:"is_credit"`

	CategoryName       string  `bigquery:"category_name"`
	CategoryConfidence float64 `bigquery:"category_confidence"`

	MerchantName string `bigquery:"merchant_name"`
	PatternID    string `bigquery:"pattern_id"`

	ModelConfidence float64 `bigquery:"model_confidence"`

	TransactionID string `bigquery:"transaction_id"`

	Errors []string `bigquery:"errors"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// CandidateRowFromDomain converts a domain candidate into its BigQuery row.
func CandidateRowFromDomain(c *domain.Candidate) *CandidateRow {
	row := &CandidateRow{
		CandidateID:        c.CandidateID,
		SessionID:          c.SessionID,
		RowIndex:           int64(c.RowIndex),
		ImportStatus:       string(c.ImportStatus),
		Date:               c.Date,
		Amount:             int64(c.Amount),
		Currency:           c.Currency,
		Description:        c.Description,
		IsCredit:           c.IsCredit,
		CategoryName:       c.CategoryName,
		CategoryConfidence: c.CategoryConfidence,
		MerchantName:       c.MerchantName,
		PatternID:          c.PatternID,
		ModelConfidence:    c.ModelConfidence,
		TransactionID:      c.TransactionID,
		Errors:             append([]string(nil), c.Errors...),
		CreatedTS:          c.CreatedTS,
	}
	if len(c.RawFields) > 0 {
		if b, err := json.Marshal(c.RawFields); err == nil {
			row.RawFields = bigquery.NullJSON{JSONVal: string(b), Valid: true}
		}
	}
	return row
}

// ToDomain converts the row back into a domain candidate.
func (r *CandidateRow) ToDomain() *domain.Candidate {
	c := &domain.Candidate{
		CandidateID:        r.CandidateID,
		SessionID:          r.SessionID,
		RowIndex:           int(r.RowIndex),
		ImportStatus:       domain.ImportStatus(r.ImportStatus),
		Date:               r.Date,
		Amount:             domain.Amount(r.Amount),
		Currency:           r.Currency,
		Description:        r.Description,
		IsCredit:           r.IsCredit,
		CategoryName:       r.CategoryName,
		CategoryConfidence: r.CategoryConfidence,
		MerchantName:       r.MerchantName,
		PatternID:          r.PatternID,
		ModelConfidence:    r.ModelConfidence,
		TransactionID:      r.TransactionID,
		Errors:             append([]string(nil), r.Errors...),
		CreatedTS:          r.CreatedTS,
	}
	if r.RawFields.Valid {
		var fields map[string]string
		if err := json.Unmarshal([]byte(r.RawFields.JSONVal), &fields); err == nil {
			c.RawFields = fields
		}
	}
	return c
}

// TransactionRow represents a committed transaction record in BigQuery.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"`
	UserID        string `bigquery:"user_id"`
	AccountID     string `bigquery:"account_id"`

	Date        civil.Date `bigquery:"date"`
	Amount      int64      `bigquery:"amount"`
	Currency    string     `bigquery:"currency"`
	Description string     `bigquery:"description"`
	IsCredit    bool       `bigquery:"is_credit"`

	CategoryName string `bigquery:"category_name"`
	MerchantName string `bigquery:"merchant_name"`

	SourceCandidateID string `bigquery:"source_candidate_id"`
	SessionID         string `bigquery:"session_id"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// TransactionRowFromDomain converts a domain transaction into its BigQuery row.
func TransactionRowFromDomain(t *domain.Transaction) *TransactionRow {
	return &TransactionRow{
		TransactionID:     t.TransactionID,
		UserID:            t.UserID,
		AccountID:         t.AccountID,
		Date:              t.Date,
		Amount:            int64(t.Amount),
		Currency:          t.Currency,
		Description:       t.Description,
		IsCredit:          t.IsCredit,
		CategoryName:      t.CategoryName,
		MerchantName:      t.MerchantName,
		SourceCandidateID: t.SourceCandidateID,
		SessionID:         t.SessionID,
		CreatedTS:         t.CreatedTS,
	}
}

// ToDomain converts the row back into a domain transaction.
func (r *TransactionRow) ToDomain() *domain.Transaction {
	return &domain.Transaction{
		TransactionID:     r.TransactionID,
		UserID:            r.UserID,
		AccountID:         r.AccountID,
		Date:              r.Date,
		Amount:            domain.Amount(r.Amount),
		Currency:          r.Currency,
		Description:       r.Description,
		IsCredit:          r.IsCredit,
		CategoryName:      r.CategoryName,
		MerchantName:      r.MerchantName,
		SourceCandidateID: r.SourceCandidateID,
		SessionID:         r.SessionID,
		CreatedTS:         r.CreatedTS,
	}
}

// LinkRow represents a transaction link record in BigQuery.
type LinkRow struct {
	LinkID string `bigquery:"link_id"`

	FromTransactionID string `bigquery:"from_transaction_id"`
	ToTransactionID   string `bigquery:"to_transaction_id"`

	LinkType   string  `bigquery:"link_type"`
	Confidence float64 `bigquery:"confidence"`

	IsConfirmed  bool `bigquery:"is_confirmed"`
	AutoDetected bool `bigquery:"auto_detected"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// LinkRowFromDomain converts a domain link into its BigQuery row.
func LinkRowFromDomain(l *domain.TransactionLink) *LinkRow {
	return &LinkRow{
		LinkID:            l.LinkID,
		FromTransactionID: l.FromTransactionID,
		ToTransactionID:   l.ToTransactionID,
		LinkType:          string(l.LinkType),
		Confidence:        l.Confidence,
		IsConfirmed:       l.IsConfirmed,
		AutoDetected:      l.AutoDetected,
		CreatedTS:         l.CreatedTS,
	}
}

// ToDomain converts the row back into a domain link.
func (r *LinkRow) ToDomain() *domain.TransactionLink {
	return &domain.TransactionLink{
		LinkID:            r.LinkID,
		FromTransactionID: r.FromTransactionID,
		ToTransactionID:   r.ToTransactionID,
		LinkType:          domain.LinkType(r.LinkType),
		Confidence:        r.Confidence,
		IsConfirmed:       r.IsConfirmed,
		AutoDetected:      r.AutoDetected,
		CreatedTS:         r.CreatedTS,
	}
}

// BalanceRow represents a balance record in BigQuery.
type BalanceRow struct {
	RecordID  string `bigquery:"record_id"`
	AccountID string `bigquery:"account_id"`

	Balance int64      `bigquery:"balance"`
	Date    civil.Date `bigquery:"date"`

	EntryType string `bigquery:"entry_type"`

	StatementBalance bigquery.NullInt64 `bigquery:"statement_balance"`

	ReconciliationStatus string `bigquery:"reconciliation_status"`

	Difference int64 `bigquery:"difference"`

	TotalIncome   int64 `bigquery:"total_income"`
	TotalExpenses int64 `bigquery:"total_expenses"`

	CalculatedChange int64 `bigquery:"calculated_change"`
	ActualChange     int64 `bigquery:"actual_change"`

	HasDiscrepancy      bool  `bigquery:"has_discrepancy"`
	MissingTransactions int64 `bigquery:"missing_transactions"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// BalanceRowFromDomain converts a domain balance record into its BigQuery row.
func BalanceRowFromDomain(b *domain.BalanceRecord) *BalanceRow {
	row := &BalanceRow{
		RecordID:             b.RecordID,
		AccountID:            b.AccountID,
		Balance:              int64(b.Balance),
		Date:                 b.Date,
		EntryType:            string(b.EntryType),
		ReconciliationStatus: string(b.ReconciliationStatus),
		Difference:           int64(b.Difference),
		TotalIncome:          int64(b.TotalIncome),
		TotalExpenses:        int64(b.TotalExpenses),
		CalculatedChange:     int64(b.CalculatedChange),
		ActualChange:         int64(b.ActualChange),
		HasDiscrepancy:       b.HasDiscrepancy,
		MissingTransactions:  int64(b.MissingTransactions),
		CreatedTS:            b.CreatedTS,
	}
	if b.StatementBalance != nil {
		row.StatementBalance = bigquery.NullInt64{Int64: int64(*b.StatementBalance), Valid: true}
	}
	return row
}

// ToDomain converts the row back into a domain balance record.
func (r *BalanceRow) ToDomain() *domain.BalanceRecord {
	b := &domain.BalanceRecord{
		RecordID:             r.RecordID,
		AccountID:            r.AccountID,
		Balance:              domain.Amount(r.Balance),
		Date:                 r.Date,
		EntryType:            domain.EntryType(r.EntryType),
		ReconciliationStatus: domain.ReconciliationStatus(r.ReconciliationStatus),
		Difference:           domain.Amount(r.Difference),
		TotalIncome:          domain.Amount(r.TotalIncome),
		TotalExpenses:        domain.Amount(r.TotalExpenses),
		CalculatedChange:     domain.Amount(r.CalculatedChange),
		ActualChange:         domain.Amount(r.ActualChange),
		HasDiscrepancy:       r.HasDiscrepancy,
		MissingTransactions:  int(r.MissingTransactions),
		CreatedTS:            r.CreatedTS,
	}
	if r.StatementBalance.Valid {
		amt := domain.Amount(r.StatementBalance.Int64)
		b.StatementBalance = &amt
	}
	return b
}

// ArtifactRow represents a parse artifact record in BigQuery.
type ArtifactRow struct {
	ArtifactID string `bigquery:"artifact_id"`
	SessionID  string `bigquery:"session_id"`

	Level string `bigquery:"level"`

	RowsExtracted int64   `bigquery:"rows_extracted"`
	UnparsedLines int64   `bigquery:"unparsed_lines"`
	UnparsedRatio float64 `bigquery:"unparsed_ratio"`

	Escalated    bool   `bigquery:"escalated"`
	ErrorMessage string `bigquery:"error_message"`

	StartedTS  time.Time `bigquery:"started_ts"`
	FinishedTS time.Time `bigquery:"finished_ts"`
}

// ArtifactRowFromDomain converts a domain parse artifact into its BigQuery row.
func ArtifactRowFromDomain(a *domain.ParseArtifact) *ArtifactRow {
	return &ArtifactRow{
		ArtifactID:    a.ID,
		SessionID:     a.SessionID,
		Level:         a.Level,
		RowsExtracted: int64(a.RowsExtracted),
		UnparsedLines: int64(a.UnparsedLines),
		UnparsedRatio: a.UnparsedRatio,
		Escalated:     a.Escalated,
		ErrorMessage:  a.Error,
		StartedTS:     a.StartedTS,
		FinishedTS:    a.FinishedTS,
	}
}

// ToDomain converts the row back into a domain parse artifact.
func (r *ArtifactRow) ToDomain() *domain.ParseArtifact {
	return &domain.ParseArtifact{
		ID:            r.ArtifactID,
		SessionID:     r.SessionID,
		Level:         r.Level,
		RowsExtracted: int(r.RowsExtracted),
		UnparsedLines: int(r.UnparsedLines),
		UnparsedRatio: r.UnparsedRatio,
		Escalated:     r.Escalated,
		Error:         r.ErrorMessage,
		StartedTS:     r.StartedTS,
		FinishedTS:    r.FinishedTS,
	}
}

// PatternRow represents a merchant pattern record in BigQuery.
type PatternRow struct {
	PatternID string `bigquery:"pattern_id"`

	Pattern     string `bigquery:"pattern"`
	PatternType string `bigquery:"pattern_type"`

	MerchantName string `bigquery:"merchant_name"`
	CategoryName string `bigquery:"category_name"`

	Confidence float64 `bigquery:"confidence"`
	UsageCount int64   `bigquery:"usage_count"`

	LastUsedTS time.Time `bigquery:"last_used_ts"`
	CreatedTS  time.Time `bigquery:"created_ts"`

	IsUserConfirmed bool `bigquery:"is_user_confirmed"`
	IsActive        bool `bigquery:"is_active"`
}

// PatternRowFromDomain converts a domain merchant pattern into its BigQuery row.
func PatternRowFromDomain(p *domain.MerchantPattern) *PatternRow {
	return &PatternRow{
		PatternID:       p.PatternID,
		Pattern:         p.Pattern,
		PatternType:     string(p.PatternType),
		MerchantName:    p.MerchantName,
		CategoryName:    p.CategoryName,
		Confidence:      p.Confidence,
		UsageCount:      p.UsageCount,
		LastUsedTS:      p.LastUsedTS,
		CreatedTS:       p.CreatedTS,
		IsUserConfirmed: p.IsUserConfirmed,
		IsActive:        p.IsActive,
	}
}

// ToDomain converts the row back into a domain merchant pattern.
func (r *PatternRow) ToDomain() *domain.MerchantPattern {
	return &domain.MerchantPattern{
		PatternID:       r.PatternID,
		Pattern:         r.Pattern,
		PatternType:     domain.PatternType(r.PatternType),
		MerchantName:    r.MerchantName,
		CategoryName:    r.CategoryName,
		Confidence:      r.Confidence,
		UsageCount:      r.UsageCount,
		LastUsedTS:      r.LastUsedTS,
		CreatedTS:       r.CreatedTS,
		IsUserConfirmed: r.IsUserConfirmed,
		IsActive:        r.IsActive,
	}
}
