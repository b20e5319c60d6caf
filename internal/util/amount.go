package util

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var reNumeric = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)

// ParseAmount converts a raw payload value into a decimal amount.
// Extraction output delivers amounts as JSON numbers, as plain numeric
// strings, or as formatted strings with currency markers and grouping
// separators, including Indian grouping ("₹1,23,456.00"). A value that
// cannot be read as a number yields nil, never an error.
func ParseAmount(v any) *decimal.Decimal {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return DecimalPtr(decimal.NewFromFloat(t))
	case int:
		return DecimalPtr(decimal.NewFromInt(int64(t)))
	case int64:
		return DecimalPtr(decimal.NewFromInt(t))
	case json.Number:
		parsed, err := decimal.NewFromString(t.String())
		if err != nil {
			return nil
		}
		return DecimalPtr(parsed)
	case string:
		return parseAmountString(t)
	default:
		return nil
	}
}

func parseAmountString(input string) *decimal.Decimal {
	cleaned := stripAmountFormatting(input)
	if cleaned == "" || !reNumeric.MatchString(cleaned) {
		return nil
	}
	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return DecimalPtr(parsed)
}

func stripAmountFormatting(input string) string {
	s := strings.TrimSpace(input)
	s = strings.TrimSuffix(s, "/-")

	negative := strings.HasPrefix(s, "-")
	out := strings.Builder{}
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			out.WriteRune(r)
		}
	}
	if out.Len() == 0 {
		return ""
	}
	if negative {
		return "-" + out.String()
	}
	return out.String()
}
