package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
	"₹": "INR",
}

var isoCode = regexp.MustCompile(`\b([A-Z]{3})\b`)

// ParseDecimal parses a locale formatted amount such as "1,234.56",
// "1.234,56", "€ 1 234,56", "(12.50)" or "$1,000". It returns nil for empty
// or non-numeric input, never zero, along with any currency code found in the
// text.
func ParseDecimal(s string) (*float64, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ""
	}

	currency := ""
	for sym, code := range currencySymbols {
		if strings.Contains(s, sym) {
			currency = code
			s = strings.ReplaceAll(s, sym, "")
		}
	}
	if m := isoCode.FindStringSubmatch(s); m != nil {
		currency = m[1]
		s = strings.Replace(s, m[1], "", 1)
	}

	negative := false
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, s)

	s = canonicalSeparators(s)
	if s == "" {
		return nil, currency
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, currency
	}
	if negative {
		v = -v
	}
	return &v, currency
}

// canonicalSeparators rewrites grouping and decimal separators so that the
// result uses '.' for decimals and nothing for grouping. When both separators
// occur, the later one is the decimal mark. A lone comma followed by exactly
// three digits is treated as grouping.
func canonicalSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")

	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)

	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}
