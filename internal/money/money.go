// Package money normalizes and formats rupee amounts.
package money

import (
	"strings"

	"github.com/example/poster-shop/internal/infrastructure/store"
	"github.com/shopspring/decimal"
)

const currencySymbol = "₹"

// Sanitize coerces a stored price into a non-negative amount. Missing,
// non-numeric, non-finite and negative values all become zero.
func Sanitize(v any) decimal.Decimal {
	if d, ok := v.(decimal.Decimal); ok {
		if d.IsNegative() {
			return decimal.Zero
		}
		return d
	}
	f, ok := store.Number(v)
	if !ok || f < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Float converts an amount to the number stored in documents.
func Float(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Format renders an amount the way the shop prints prices: rupee symbol,
// Indian digit grouping, at most two fraction digits.
func Format(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	s := d.Round(2).String()
	whole, frac, _ := strings.Cut(s, ".")
	out := sign + currencySymbol + groupIndian(whole)
	if frac != "" {
		out += "." + frac
	}
	return out
}

// groupIndian places a comma after the last three digits and then every two.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}
