// Package format renders numbers for reports. Every template formats
// numbers through these functions so the same value reads the same in
// every report type.
package format

import (
	"fmt"
	"html/template"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var symbols = map[string]string{
	"USD": "$",
	"AUD": "A$",
	"CAD": "C$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
	"CHF": "CHF ",
}

// Placeholder is shown for values that were not supplied.
const Placeholder = "n/a"

// Symbol returns the display prefix for an ISO 4217 code. Unknown codes
// are shown as the code followed by a space.
func Symbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "USD"
	}
	if s, ok := symbols[code]; ok {
		return s
	}
	return code + " "
}

// Currency rounds to whole units and groups thousands: Currency(12345.6, "USD") is "$12,346".
func Currency(v float64, code string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Placeholder
	}
	sign := ""
	rounded := math.Round(v)
	if rounded < 0 {
		sign = "-"
		rounded = -rounded
	}
	return sign + Symbol(code) + printer.Sprintf("%.0f", rounded)
}

// CurrencyPtr formats an optional amount.
func CurrencyPtr(v *float64, code string) string {
	if v == nil {
		return Placeholder
	}
	return Currency(*v, code)
}

// Number formats an integer with thousands grouping.
func Number(v any) string {
	switch n := v.(type) {
	case int:
		return printer.Sprintf("%d", n)
	case int64:
		return printer.Sprintf("%d", n)
	case float64:
		r := math.Round(n)
		if r == 0 {
			r = 0
		}
		return printer.Sprintf("%.0f", r)
	default:
		return printer.Sprint(n)
	}
}

// Decimal formats v with one fractional digit.
func Decimal(v float64) string {
	return printer.Sprintf("%.1f", tenths(v))
}

// Percent formats a 0-100 share with one fractional digit.
func Percent(v float64) string {
	return printer.Sprintf("%.1f%%", tenths(v))
}

// tenths rounds v to one fractional digit so values that round to zero
// never print as "-0.0".
func tenths(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0
	}
	return r
}

// PercentPtr formats an optional percentage.
func PercentPtr(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return Percent(*v)
}

// Months formats a payback period. Nil means savings never pay back.
func Months(v *float64) string {
	if v == nil {
		return Placeholder
	}
	if *v == 1 {
		return "1.0 month"
	}
	return Decimal(*v) + " months"
}

// Term formats an optional commitment term.
func Term(years *int) string {
	switch {
	case years == nil:
		return Placeholder
	case *years == 1:
		return "1 year"
	default:
		return printer.Sprintf("%d years", *years)
	}
}

// Value formats v according to kind: "currency", "percent" or a count.
func Value(kind any, v float64, code string) string {
	switch fmt.Sprint(kind) {
	case "currency":
		return Currency(v, code)
	case "percent":
		return Percent(v)
	default:
		return Number(v)
	}
}

// FuncMap exposes the formatters to templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"currency":    Currency,
		"currencyPtr": CurrencyPtr,
		"number":      Number,
		"decimal":     Decimal,
		"percent":     Percent,
		"percentPtr":  PercentPtr,
		"months":      Months,
		"term":        Term,
		"value":       Value,
	}
}
