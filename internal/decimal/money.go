package decimal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

var hundred = decimal.NewFromInt(100)

// Parse reads a wire amount, accepting a comma as decimal separator.
// Blank or malformed input yields zero.
func Parse(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero
	}
	return d
}

// Money formats with exactly 2 decimal digits
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Rate formats with exactly 4 decimal digits
func Rate(d decimal.Decimal) string {
	return d.StringFixed(4)
}

// PercentToFraction converts 5 (%) into 0.05
func PercentToFraction(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}

// FractionToPercent converts 0.05 into 5 (%)
func FractionToPercent(f decimal.Decimal) decimal.Decimal {
	return f.Mul(hundred)
}

// IsPositive reports d > 0
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Zero)
}

// IsNonNegative reports d >= 0
func IsNonNegative(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(Zero)
}
