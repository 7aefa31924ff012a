// Package money formats euro amounts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatEUR renders d as "€235,000", or "€99,500.50" when it has cents.
func FormatEUR(d decimal.Decimal) string {
	r := d.Round(2)
	sign := ""
	if r.IsNegative() {
		sign = "-"
		r = r.Abs()
	}
	whole := r.Truncate(0)
	cents := r.Sub(whole).Mul(decimal.NewFromInt(100)).IntPart()
	if cents == 0 {
		return sign + printer.Sprintf("€%d", whole.IntPart())
	}
	return sign + printer.Sprintf("€%d", whole.IntPart()) + fmt.Sprintf(".%02d", cents)
}

// FormatRange renders "€min - €max", or "N/A" when either bound is missing.
func FormatRange(min, max *decimal.Decimal) string {
	if min == nil || max == nil {
		return "N/A"
	}
	return FormatEUR(*min) + " - " + FormatEUR(*max)
}
