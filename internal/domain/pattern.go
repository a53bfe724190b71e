package domain

import (
	"time"
)

// PatternType determines how a merchant pattern matches a description.
type PatternType string

const (
	PatternExact    PatternType = "exact"
	PatternPrefix   PatternType = "prefix"
	PatternContains PatternType = "contains"
)

// MerchantPattern is a reusable rule mapping a description signature to a
// merchant and category. Patterns are append-only: corrections create a new
// pattern, and obsolete patterns are deactivated rather than deleted, which
// preserves the learning trail for disputed categorizations.
type MerchantPattern struct {
	PatternID string `json:"pattern_id"`

	Pattern     string      `json:"pattern"`
	PatternType PatternType `json:"pattern_type"`

	MerchantName string `json:"merchant_name"`
	CategoryName string `json:"category_name"`

	Confidence float64 `json:"confidence"`
	UsageCount int64   `json:"usage_count"`

	LastUsedTS time.Time `json:"last_used_ts"`
	CreatedTS  time.Time `json:"created_ts"`

	IsUserConfirmed bool `json:"is_user_confirmed"`
	IsActive        bool `json:"is_active"`
}
