// Package money provides exact decimal helpers for prices and order totals.
// Values never pass through binary floating point.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an exact monetary value.
type Amount = decimal.Decimal

// Scale is the number of fractional digits used when rendering amounts.
const Scale = 2

// Zero is the exact zero amount used to seed sums.
var Zero = decimal.Zero

// Parse converts a textual amount into an exact decimal. Surrounding
// whitespace is ignored.
func Parse(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(raw))
}

// MustParse is Parse for constants and tests; it panics on malformed input.
func MustParse(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

// Sum adds the amounts starting from an exact zero.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Format renders an amount with two fractional digits, e.g. "1024.99".
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(Scale)
}
