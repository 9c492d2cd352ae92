package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount the way replies and history lines show it:
// whole numbers keep one fractional digit (1000 -> "1000.0").
func FormatAmount(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s + ".0"
	}
	return s
}

// FormatMoney renders an amount with exactly two fractional digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
