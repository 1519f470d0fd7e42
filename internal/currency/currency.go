// Package currency formats Money for display.
package currency

import (
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/currency"

	"fintrack/internal/core"
)

// Default is used when an empty or unknown code is given.
const Default = "USD"

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "¥",
	"INR": "₹",
	"PHP": "₱",
	"KRW": "₩",
	"NGN": "₦",
	"RUB": "₽",
	"BRL": "R$",
	"CAD": "CA$",
	"AUD": "A$",
	"CHF": "CHF ",
	"KES": "KSh ",
	"IDR": "Rp ",
}

// Currencies formatted without minor units.
var zeroDecimal = map[string]bool{
	"JPY": true,
	"KRW": true,
	"IDR": true,
}

// Normalize returns the upper-case ISO 4217 code, or Default when code is
// not a recognised currency.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Default
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Default
	}
	return unit.String()
}

// Symbol returns the display symbol for code. Codes without a known symbol
// render as the ISO code followed by a space.
func Symbol(code string) string {
	code = Normalize(code)
	if s, ok := symbols[code]; ok {
		return s
	}
	return code + " "
}

// Format renders m in the given currency, e.g. "$1,234.50" or "-€12.00".
func Format(m core.Money, code string) string {
	code = Normalize(code)
	pattern := "#,###.##"
	if zeroDecimal[code] {
		pattern = "#,###."
	}
	s := Symbol(code) + humanize.FormatFloat(pattern, m.Abs().Float())
	if m.IsNegative() {
		return "-" + s
	}
	return s
}
