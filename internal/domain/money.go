package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a signed monetary value in currency minor units (pennies, cents).
// Negative means money out. Statements quote decimals; everything internal
// works in integers to keep reconciliation arithmetic exact.
type Amount int64

// ParseAmount converts a statement amount string into minor units. It accepts
// thousand separators, currency symbols, a leading/trailing sign, and the
// accounting convention of parentheses for negatives: "(4.50)" == -450.
func ParseAmount(s string) (Amount, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	if strings.HasSuffix(cleaned, "-") {
		negative = true
		cleaned = strings.TrimSuffix(cleaned, "-")
	}

	var b strings.Builder
	for _, r := range cleaned {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			b.WriteRune(r)
		case r == ',', r == ' ', r == '£', r == '$', r == '€':
			// separators and symbols are dropped
		default:
			return 0, fmt.Errorf("unexpected character %q in amount %q", r, s)
		}
	}
	cleaned = b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "+" {
		return 0, fmt.Errorf("no digits in amount %q", s)
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	minor := int64(f*100 + 0.5)
	if f < 0 {
		minor = int64(f*100 - 0.5)
	}
	if negative {
		minor = -minor
	}
	return Amount(minor), nil
}

// AmountFromFloat converts a decimal major-unit value (as produced by the AI
// parser's JSON) into minor units with half-away-from-zero rounding.
func AmountFromFloat(f float64) Amount {
	if f < 0 {
		return Amount(int64(f*100 - 0.5))
	}
	return Amount(int64(f*100 + 0.5))
}

// Abs returns the magnitude of the amount.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// String renders the amount as a decimal with two places, e.g. "-4.50".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON serializes the amount as a decimal string, matching how the
// statement quoted it rather than exposing minor units to API consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := ParseAmount(s)
		if perr != nil {
			return perr
		}
		*a = parsed
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("amount must be a decimal string or number: %w", err)
	}
	*a = AmountFromFloat(f)
	return nil
}
