package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/dvloznov/statement-engine/internal/domain"
)

// NamedPattern is one regex strategy in the ordered pattern list. Capture
// groups must use the canonical field names (date, description, amount,
// optionally type and currency).
type NamedPattern struct {
	Name string
	Re   *regexp.Regexp
}

// defaultPatterns cover the statement line shapes seen across UK/US bank PDF
// exports. Order matters: the first pattern yielding a complete field set for
// a line wins.
var defaultPatterns = []NamedPattern{
	{
		// 05/01/2024 STARBUCKS #123 -4.50
		Name: "slash-date-trailing-amount",
		Re: regexp.MustCompile(`^(?P<date>\d{1,2}/\d{1,2}/\d{2,4})\s+(?P<description>.+?)\s+(?P<amount>\(?-?[£$€]?[\d,]+\.\d{2}\)?-?)$`),
	},
	{
		// 2024-01-05 STARBUCKS #123 -4.50
		Name: "iso-date-trailing-amount",
		Re: regexp.MustCompile(`^(?P<date>\d{4}-\d{2}-\d{2})\s+(?P<description>.+?)\s+(?P<amount>\(?-?[£$€]?[\d,]+\.\d{2}\)?-?)$`),
	},
	{
		// 05 Jan 2024 STARBUCKS #123 4.50 DR
		Name: "day-month-name-with-direction",
		Re: regexp.MustCompile(`^(?P<date>\d{1,2} [A-Za-z]{3,9} \d{2,4})\s+(?P<description>.+?)\s+(?P<amount>[£$€]?[\d,]+\.\d{2})\s+(?P<type>DR|CR|DEBIT|CREDIT)$`),
	},
	{
		// 05 Jan STARBUCKS #123 4.50 (statement year supplied elsewhere;
		// normalizer rejects if the year cannot be resolved)
		Name: "day-month-name-trailing-amount",
		Re: regexp.MustCompile(`^(?P<date>\d{1,2} [A-Za-z]{3,9} \d{2,4})\s+(?P<description>.+?)\s+(?P<amount>\(?-?[£$€]?[\d,]+\.\d{2}\)?-?)$`),
	},
}

// PatternParser applies ordered named-capture regexes to loosely structured
// text extracted from a PDF. Unmatched lines are retained, feeding either the
// escalation decision or manual correction.
type PatternParser struct {
	patterns []NamedPattern
	extract  TextExtractor
}

// TextExtractor turns document bytes into plain text. The production
// implementation reads PDFs; tests substitute a literal.
type TextExtractor func(data []byte, password string) (string, error)

// NewPatternParser creates the pattern (level 2) parser with the default
// pattern list and PDF text extraction.
func NewPatternParser() *PatternParser {
	return &PatternParser{patterns: defaultPatterns, extract: ExtractPDFText}
}

// NewPatternParserWith creates a pattern parser with a custom pattern list
// and extractor.
func NewPatternParserWith(patterns []NamedPattern, extract TextExtractor) *PatternParser {
	return &PatternParser{patterns: patterns, extract: extract}
}

// Level implements Parser.
func (p *PatternParser) Level() Level { return LevelPattern }

// Applicable implements Parser.
func (p *PatternParser) Applicable(ft domain.FileType) bool {
	return ft == domain.FileTypePDF
}

// Parse implements Parser.
func (p *PatternParser) Parse(ctx context.Context, doc Document) (*Result, error) {
	text, err := p.extract(doc.Bytes, doc.Password)
	if err != nil {
		return nil, err
	}

	result := &Result{Level: LevelPattern}
	for _, line := range strings.Split(text, "\n") {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields, ok := p.matchLine(line)
		if !ok {
			result.UnparsedLines = append(result.UnparsedLines, line)
			continue
		}
		result.Rows = append(result.Rows, RawRow{
			Index:  len(result.Rows),
			Fields: fields,
		})
	}
	return result, nil
}

// matchLine tries each pattern in order; the first complete field set wins.
func (p *PatternParser) matchLine(line string) (map[string]string, bool) {
	for _, np := range p.patterns {
		m := np.Re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fields := make(map[string]string)
		for i, name := range np.Re.SubexpNames() {
			if name == "" || i >= len(m) || m[i] == "" {
				continue
			}
			fields[name] = strings.TrimSpace(m[i])
		}
		if fields[FieldDate] == "" || fields[FieldAmount] == "" || fields[FieldDescription] == "" {
			continue
		}
		if t, ok := fields[FieldType]; ok {
			fields[FieldType] = canonicalDirection(t)
		}
		return fields, true
	}
	return nil, false
}

func canonicalDirection(t string) string {
	switch strings.ToUpper(t) {
	case "CR", "CREDIT":
		return "credit"
	case "DR", "DEBIT":
		return "debit"
	}
	return strings.ToLower(t)
}

var _ Parser = (*PatternParser)(nil)
