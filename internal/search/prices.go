package search

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	minPrice = decimal.NewFromInt(100)
	maxPrice = decimal.NewFromInt(100000)
)

const amount = `((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?)`

// pricePattern matches ¥1,234 / ￥1234 / 1,234円 / 1234 円.
var pricePattern = regexp.MustCompile(`[¥￥]\s*` + amount + `|` + amount + `\s*円`)

var taxExcludedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`税抜[^\d]*` + amount + `\s*円?`),
	regexp.MustCompile(`本体[^\d]*` + amount + `\s*円?`),
	regexp.MustCompile(amount + `\s*円?\s*[(（]税抜`),
	regexp.MustCompile(amount + `\s*円?\s*[+＋]税`),
}

func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func plausible(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(minPrice) && d.LessThanOrEqual(maxPrice)
}

// FirstPrice returns the leftmost currency amount in text within the
// plausible retail range.
func FirstPrice(text string) (decimal.Decimal, bool) {
	for _, m := range pricePattern.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		d, ok := parseAmount(raw)
		if ok && plausible(d) {
			return d, true
		}
	}
	return decimal.Zero, false
}

// TaxExcludedPrices returns every plausible amount in text that is labeled
// as excluding consumption tax.
func TaxExcludedPrices(text string) []decimal.Decimal {
	var prices []decimal.Decimal
	for _, p := range taxExcludedPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			d, ok := parseAmount(m[1])
			if ok && plausible(d) {
				prices = append(prices, d)
			}
		}
	}
	return prices
}

// Average returns the arithmetic mean of prices. prices must not be empty.
func Average(prices []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range prices {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(len(prices))))
}

// FormatYen renders the integer part of d as ¥12,345.
func FormatYen(d decimal.Decimal) string {
	return "¥" + groupThousands(d.Truncate(0).String())
}

// FormatTaxExcluded renders the integer part of d as 1234円(税抜).
func FormatTaxExcluded(d decimal.Decimal) string {
	return d.Truncate(0).String() + "円(税抜)"
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}
