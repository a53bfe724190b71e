// Package normalize turns raw parser rows into validated transaction
// candidates: typed dates, minor-unit amounts, cleaned descriptions, and a
// category assignment from the pattern store where one applies.
package normalize

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/parser"
	"github.com/dvloznov/statement-engine/internal/patterns"
	"github.com/google/uuid"
)

// dateLayouts are tried in order. Slash dates are read day-first; statements
// in this engine's market quote 05/01/2024 as the 5th of January.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"02-01-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 January 2006",
	"2 January 2006",
	"02 Jan 06",
	"Jan 2, 2006",
}

// Normalizer converts parser output into candidates. The pattern store is
// consulted per row for merchant and category assignment.
type Normalizer struct {
	patterns        patterns.Store
	defaultCurrency string
	now             func() time.Time
}

// New creates a normalizer. defaultCurrency fills rows whose statement did
// not quote one.
func New(store patterns.Store, defaultCurrency string) *Normalizer {
	return &Normalizer{
		patterns:        store,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

// Normalize maps every raw row to exactly one candidate. Rows that fail
// validation still produce a candidate, marked failed with per-row errors, so
// the candidate count always equals the parsed row count.
func (n *Normalizer) Normalize(ctx context.Context, sessionID string, result *parser.Result) []domain.Candidate {
	log := logger.FromContext(ctx)

	candidates := make([]domain.Candidate, 0, len(result.Rows))
	for _, row := range result.Rows {
		c := n.normalizeRow(ctx, sessionID, result.Level, row)
		candidates = append(candidates, c)
	}

	failed := 0
	for _, c := range candidates {
		if c.ImportStatus == domain.ImportFailed {
			failed++
		}
	}
	log.Info().
		Str("session_id", sessionID).
		Int("candidates", len(candidates)).
		Int("failed", failed).
		Msg("normalized parser rows")
	return candidates
}

func (n *Normalizer) normalizeRow(ctx context.Context, sessionID string, level parser.Level, row parser.RawRow) domain.Candidate {
	c := domain.Candidate{
		CandidateID:  uuid.NewString(),
		SessionID:    sessionID,
		RowIndex:     row.Index,
		ImportStatus: domain.ImportPending,
		RawFields:    row.Fields,
		Currency:     n.defaultCurrency,
		CreatedTS:    n.now().UTC(),
	}

	if v := row.Fields[parser.FieldCurrency]; v != "" {
		c.Currency = strings.ToUpper(strings.TrimSpace(v))
	}

	c.Description = cleanDescription(row.Fields[parser.FieldDescription])
	if c.Description == "" {
		c.Errors = append(c.Errors, "missing description")
	}

	date, err := parseDate(row.Fields[parser.FieldDate])
	if err != nil {
		c.Errors = append(c.Errors, err.Error())
	} else {
		c.Date = date
	}

	amount, err := parseSignedAmount(row.Fields)
	if err != nil {
		c.Errors = append(c.Errors, err.Error())
	} else {
		c.Amount = amount
		c.IsCredit = amount > 0
	}

	if v := row.Fields[parser.FieldConfidence]; v != "" {
		conf, err := strconv.ParseFloat(v, 64)
		if err != nil || conf < 0 || conf > 1 {
			c.Errors = append(c.Errors, fmt.Sprintf("model confidence %q out of range", v))
		} else {
			c.ModelConfidence = conf
		}
	}

	if len(c.Errors) > 0 {
		c.ImportStatus = domain.ImportFailed
		return c
	}

	n.categorize(ctx, &c, level, row)
	return c
}

// categorize assigns merchant and category. A pattern-store match wins; the
// model's own category suggestion is the fallback for AI-parsed rows. Rows no
// pattern covers seed a tentative one from the merchant token, so the next
// statement from the same merchant gets a hit.
func (n *Normalizer) categorize(ctx context.Context, c *domain.Candidate, level parser.Level, row parser.RawRow) {
	log := logger.FromContext(ctx)

	if n.patterns != nil {
		if p, ok := n.patterns.Lookup(ctx, c.Description); ok {
			c.MerchantName = p.MerchantName
			c.CategoryName = p.CategoryName
			c.CategoryConfidence = p.Confidence
			c.PatternID = p.PatternID
			if err := n.patterns.RecordUse(ctx, p.PatternID, c.CandidateID); err != nil {
				log.Warn().Err(err).
					Str("pattern_id", p.PatternID).
					Msg("failed to record pattern use")
			}
			return
		}
	}

	if level == parser.LevelAI {
		if cat := strings.TrimSpace(row.Fields["category"]); cat != "" {
			c.CategoryName = cat
			c.CategoryConfidence = c.ModelConfidence
		}
	}

	token := merchantToken(c.Description)
	if n.patterns == nil || token == "" {
		return
	}
	p, err := n.patterns.Learn(ctx, token, token, c.CategoryName)
	if err != nil {
		log.Warn().Err(err).Str("pattern", token).Msg("failed to learn pattern")
		return
	}
	c.MerchantName = p.MerchantName
	c.PatternID = p.PatternID
	if c.CategoryName == "" {
		c.CategoryName = p.CategoryName
	}
	if c.CategoryConfidence == 0 {
		c.CategoryConfidence = p.Confidence
	}
	if err := n.patterns.RecordUse(ctx, p.PatternID, c.CandidateID); err != nil {
		log.Warn().Err(err).
			Str("pattern_id", p.PatternID).
			Msg("failed to record pattern use")
	}
}

// merchantToken extracts the leading run of alphabetic words from a cleaned
// description, dropping store numbers, card references and date tails.
// Returns "" when the description does not start with a usable name.
func merchantToken(desc string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToUpper(desc)) {
		w = strings.Trim(w, "*#")
		if w == "" || !alphaWord(w) {
			break
		}
		words = append(words, w)
		if len(words) == 4 {
			break
		}
	}
	token := strings.Join(words, " ")
	if len(token) < 3 {
		return ""
	}
	return token
}

func alphaWord(w string) bool {
	for _, r := range w {
		if !unicode.IsLetter(r) && r != '\'' && r != '&' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

// parseDate tries the known statement layouts in order.
func parseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, fmt.Errorf("missing date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("unrecognized date %q", s)
}

// parseSignedAmount resolves the row's amount and applies the direction hint.
// A debit hint forces the sign negative, a credit hint positive; the hint
// wins over the quoted sign because separate paid-out columns often quote
// magnitudes. A row with neither a hint nor a sign of its own is ambiguous
// and fails rather than guessing a direction.
func parseSignedAmount(fields map[string]string) (domain.Amount, error) {
	raw := fields[parser.FieldAmount]
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if amount == 0 {
		return 0, fmt.Errorf("zero amount")
	}

	switch fields[parser.FieldType] {
	case "debit":
		return -amount.Abs(), nil
	case "credit":
		return amount.Abs(), nil
	}
	if !signExplicit(raw) {
		return 0, fmt.Errorf("ambiguous amount %q: no sign and no direction column", raw)
	}
	return amount, nil
}

// signExplicit reports whether the quoted amount states its own direction: a
// leading or trailing sign, or accounting parentheses.
func signExplicit(raw string) bool {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return true
	}
	return strings.ContainsAny(s, "+-")
}

func cleanDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
