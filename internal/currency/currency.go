// Package currency holds the static currency table and amount formatting
// rules shared by every payment flow.
package currency

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const (
	NGN = "ngn"
	USD = "usd"
)

// Default is used when a currency cannot be determined.
const Default = USD

var symbols = map[string]string{
	NGN:   "₦",
	USD:   "$",
	"gbp": "£",
	"eur": "€",
	"ghs": "₵",
	"kes": "KSh",
	"zar": "R",
	"tzs": "TSh",
	"ugx": "USh",
	"rwf": "FRw",
	"etb": "Br",
	"mad": "DH",
	"egp": "E£",
	"cad": "C$",
	"aud": "A$",
	"inr": "₹",
}

// zeroDecimal lists currencies displayed without minor units.
var zeroDecimal = map[string]bool{
	NGN: true,
}

// Normalize lower-cases and trims a currency code.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Symbol returns the display symbol, "$" for unknown codes.
func Symbol(code string) string {
	if s, ok := symbols[Normalize(code)]; ok {
		return s
	}
	return "$"
}

func Known(code string) bool {
	_, ok := symbols[Normalize(code)]
	return ok
}

// Decimals is the number of displayed decimal places for code.
func Decimals(code string) int32 {
	if zeroDecimal[Normalize(code)] {
		return 0
	}
	return 2
}

// Round rounds half away from zero to the currency's display precision.
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(Decimals(code))
}

// Format renders amount with symbol and thousands separators:
// Format(1234.5, "ngn") is "₦1,235", Format(1234.5, "usd") is "$1,234.50".
func Format(amount float64, code string) string {
	places := Decimals(code)
	rounded := decimal.NewFromFloat(amount).Round(places)

	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}

	whole := rounded.Truncate(0)
	out := sign + Symbol(code) + humanize.Comma(whole.IntPart())
	if places > 0 {
		// StringFixed of the fraction is "0.xx"; keep the ".xx" part.
		out += rounded.Sub(whole).StringFixed(places)[1:]
	}
	return out
}
