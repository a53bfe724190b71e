// Package detect finds relationships between transactions: duplicate imports
// of the same underlying payment, transfer pairs between accounts, and
// refunds reversing an earlier charge.
package detect

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/google/uuid"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Detector scores candidate relationships between transactions. Scores are
// additive evidence clipped to [0,1]; a link above the auto-confirm threshold
// is confirmed without review.
type Detector struct {
	windowDays  int
	autoConfirm float64
	now         func() time.Time
}

// New creates a detector. windowDays bounds how far apart two records may be
// dated and still relate; autoConfirm is the confidence above which a link
// needs no human review.
func New(windowDays int, autoConfirm float64) *Detector {
	return &Detector{windowDays: windowDays, autoConfirm: autoConfirm, now: time.Now}
}

var transferKeywords = []string{"TRANSFER", "TFR", "XFER", "MOVE TO", "STANDING ORDER"}
var refundKeywords = []string{"REFUND", "RFND", "REVERSAL", "RETURN"}

// FindDuplicate checks a candidate against committed transactions and returns
// the best duplicate match with its confidence. Only matches at or above 0.5
// are reported; the caller decides what to do below the auto-confirm line.
func (d *Detector) FindDuplicate(c *domain.Candidate, existing []*domain.Transaction) (*domain.Transaction, float64, bool) {
	var best *domain.Transaction
	bestScore := 0.0

	for _, t := range existing {
		if t.Currency != c.Currency {
			continue
		}
		gap := daysApart(c.Date, t.Date)
		if gap > d.windowDays {
			continue
		}

		score := 0.0
		if t.Amount == c.Amount {
			score += 0.5
		} else {
			continue
		}
		if gap == 0 {
			score += 0.3
		} else {
			score += 0.15
		}
		sim := similarity(c.Description, t.Description)
		switch {
		case sim >= 0.85:
			score += 0.2
		case sim >= 0.6:
			score += 0.1
		}

		score = clip(score)
		if score > bestScore {
			bestScore = score
			best = t
		}
	}

	if best == nil || bestScore < 0.5 {
		return nil, 0, false
	}
	return best, bestScore, true
}

// IsDuplicateConfirmed reports whether a duplicate score clears the
// auto-confirm threshold.
func (d *Detector) IsDuplicateConfirmed(score float64) bool {
	return score > d.autoConfirm
}

// DetectLinks scans a transaction set pairwise and returns transfer, refund
// and duplicate links. The scan is symmetric: the same pair yields the same
// link whichever order the set presents it, with the link's from-side being
// the money-out transaction for transfers and the original charge for
// refunds.
func (d *Detector) DetectLinks(ctx context.Context, txns []*domain.Transaction) []domain.TransactionLink {
	log := logger.FromContext(ctx)

	var links []domain.TransactionLink
	seen := make(map[string]bool)

	for i := 0; i < len(txns); i++ {
		for j := i + 1; j < len(txns); j++ {
			link, ok := d.scorePair(txns[i], txns[j])
			if !ok {
				continue
			}
			if seen[link.PairKey()] {
				continue
			}
			seen[link.PairKey()] = true
			links = append(links, *link)
		}
	}

	log.Info().Int("transactions", len(txns)).Int("links", len(links)).Msg("link detection complete")
	return links
}

// scorePair evaluates one unordered pair against each link heuristic and
// keeps the strongest qualifying one.
func (d *Detector) scorePair(a, b *domain.Transaction) (*domain.TransactionLink, bool) {
	if a.Currency != b.Currency {
		return nil, false
	}
	if daysApart(a.Date, b.Date) > d.windowDays {
		return nil, false
	}

	type scored struct {
		linkType domain.LinkType
		conf     float64
		from, to *domain.Transaction
	}
	var best scored

	consider := func(s scored) {
		if s.conf > best.conf {
			best = s
		}
	}

	if conf, ok := d.scoreDuplicatePair(a, b); ok {
		from, to := a, b
		if b.CreatedTS.Before(a.CreatedTS) {
			from, to = b, a
		}
		consider(scored{domain.LinkDuplicate, conf, from, to})
	}
	if conf, ok := d.scoreTransfer(a, b); ok {
		from, to := a, b
		if b.Amount < 0 {
			from, to = b, a
		}
		consider(scored{domain.LinkTransfer, conf, from, to})
	}
	if conf, ok := d.scoreRefund(a, b); ok {
		from, to := a, b
		if b.Amount < 0 {
			from, to = b, a
		}
		consider(scored{domain.LinkRefund, conf, from, to})
	}

	if best.conf < 0.5 {
		return nil, false
	}

	link := &domain.TransactionLink{
		LinkID:            uuid.NewString(),
		FromTransactionID: best.from.TransactionID,
		ToTransactionID:   best.to.TransactionID,
		LinkType:          best.linkType,
		Confidence:        best.conf,
		IsConfirmed:       best.conf > d.autoConfirm,
		AutoDetected:      true,
		CreatedTS:         d.now().UTC(),
	}
	return link, true
}

// scoreDuplicatePair applies the duplicate heuristic to two committed
// transactions in the same account.
func (d *Detector) scoreDuplicatePair(a, b *domain.Transaction) (float64, bool) {
	if a.AccountID != b.AccountID || a.Amount != b.Amount {
		return 0, false
	}
	score := 0.5
	if daysApart(a.Date, b.Date) == 0 {
		score += 0.3
	} else {
		score += 0.15
	}
	sim := similarity(a.Description, b.Description)
	switch {
	case sim >= 0.85:
		score += 0.2
	case sim >= 0.6:
		score += 0.1
	}
	return clip(score), true
}

// scoreTransfer looks for equal-and-opposite amounts across two different
// accounts of the same user within the window.
func (d *Detector) scoreTransfer(a, b *domain.Transaction) (float64, bool) {
	if a.UserID != b.UserID {
		return 0, false
	}
	if a.AccountID == b.AccountID {
		return 0, false
	}
	if a.Amount != -b.Amount || a.Amount == 0 {
		return 0, false
	}

	score := 0.5
	if daysApart(a.Date, b.Date) <= 1 {
		score += 0.2
	} else {
		score += 0.1
	}
	if containsAny(a.Description, transferKeywords) || containsAny(b.Description, transferKeywords) {
		score += 0.2
	}
	if similarity(a.Description, b.Description) >= 0.6 {
		score += 0.1
	}
	return clip(score), true
}

// scoreRefund looks for a later credit in the same account reversing an
// earlier charge, in full or in part. A full-magnitude reversal scores
// higher than a partial refund.
func (d *Detector) scoreRefund(a, b *domain.Transaction) (float64, bool) {
	if a.AccountID != b.AccountID {
		return 0, false
	}

	charge, credit := a, b
	if a.Amount > 0 {
		charge, credit = b, a
	}
	if charge.Amount >= 0 || credit.Amount <= 0 {
		return 0, false
	}
	if credit.Amount > -charge.Amount {
		return 0, false
	}
	if credit.Date.Before(charge.Date) {
		return 0, false
	}

	score := 0.3
	if credit.Amount == -charge.Amount {
		score += 0.2
	}
	sim := similarity(charge.Description, credit.Description)
	if sim >= 0.6 {
		score += 0.3
	}
	if containsAny(credit.Description, refundKeywords) {
		score += 0.2
	}
	if daysApart(charge.Date, credit.Date) <= 1 {
		score += 0.1
	}
	return clip(score), true
}

func daysApart(a, b civil.Date) int {
	days := a.DaysSince(b)
	if days < 0 {
		days = -days
	}
	return days
}

// similarity is a normalized Levenshtein ratio over the uppercased, space
// collapsed descriptions. 1 means identical.
func similarity(a, b string) float64 {
	na := normalize(a)
	nb := normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return levenshtein.RatioForStrings([]rune(na), []rune(nb), levenshtein.DefaultOptions)
}

func normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func containsAny(s string, keywords []string) bool {
	up := normalize(s)
	for _, kw := range keywords {
		if strings.Contains(up, kw) {
			return true
		}
	}
	return false
}

func clip(f float64) float64 {
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}
