package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// EntryType distinguishes how a balance record came to exist.
type EntryType string

const (
	EntryDaily          EntryType = "daily"
	EntryWeekly         EntryType = "weekly"
	EntryMonthly        EntryType = "monthly"
	EntryManual         EntryType = "manual"
	EntryReconciliation EntryType = "reconciliation"
)

// ReconciliationStatus is the outcome state of a balance record.
type ReconciliationStatus string

const (
	ReconPending       ReconciliationStatus = "pending"
	ReconReconciled    ReconciliationStatus = "reconciled"
	ReconDiscrepancy   ReconciliationStatus = "discrepancy"
	ReconInvestigation ReconciliationStatus = "investigation"
)

// BalanceRecord is one balance snapshot per account per reporting point.
// Invariants: Difference = StatementBalance - Balance whenever both are
// present, and CalculatedChange = TotalIncome - TotalExpenses must equal
// ActualChange unless HasDiscrepancy is set.
type BalanceRecord struct {
	RecordID  string `json:"record_id"`
	AccountID string `json:"account_id"`

	Balance Amount     `json:"balance"`
	Date    civil.Date `json:"date"`

	EntryType EntryType `json:"entry_type"`

	StatementBalance *Amount `json:"statement_balance,omitempty"`

	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status"`

	Difference Amount `json:"difference"`

	TotalIncome   Amount `json:"total_income"`
	TotalExpenses Amount `json:"total_expenses"`

	CalculatedChange Amount `json:"calculated_change"`
	ActualChange     Amount `json:"actual_change"`

	HasDiscrepancy bool `json:"has_discrepancy"`

	// MissingTransactions estimates how many transactions would account for
	// the discrepancy gap. Zero when reconciled.
	MissingTransactions int `json:"missing_transactions"`

	CreatedTS time.Time `json:"created_ts"`
}
