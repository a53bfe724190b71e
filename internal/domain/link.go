package domain

import (
	"time"
)

// LinkType classifies a detected relationship between two transactions.
type LinkType string

const (
	LinkTransfer     LinkType = "transfer"
	LinkRefund       LinkType = "refund"
	LinkSplitPayment LinkType = "split_payment"
	LinkCorrection   LinkType = "correction"
	LinkDuplicate    LinkType = "duplicate"
)

// TransactionLink relates two transactions. Each unordered pair has at most
// one active link; links are created by the detector and confirmed or
// rejected by a human reviewer.
type TransactionLink struct {
	LinkID string `json:"link_id"`

	FromTransactionID string `json:"from_transaction_id"`
	ToTransactionID   string `json:"to_transaction_id"`

	LinkType   LinkType `json:"link_type"`
	Confidence float64  `json:"confidence"`

	IsConfirmed  bool `json:"is_confirmed"`
	AutoDetected bool `json:"auto_detected"`

	CreatedTS time.Time `json:"created_ts"`
}

// PairKey returns an order-independent key for the linked pair, so detection
// yields the same link regardless of which side was seen first.
func (l *TransactionLink) PairKey() string {
	if l.FromTransactionID < l.ToTransactionID {
		return l.FromTransactionID + "|" + l.ToTransactionID
	}
	return l.ToTransactionID + "|" + l.FromTransactionID
}
