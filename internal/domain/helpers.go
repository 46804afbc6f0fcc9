package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// MapSymbol looks up internal in mapping and returns the venue-specific
// spelling, or internal unchanged if no entry exists.
func MapSymbol(internal string, mapping map[string]string) string {
	if v, ok := mapping[internal]; ok {
		return v
	}
	return internal
}

// NormalizeQuoteAlias canonicalizes a quote asset to USDT when a venue only
// lists the USD-denominated spelling of an otherwise identical market, so
// triangle discovery sees one quote currency instead of two.
func NormalizeQuoteAlias(symbol string) string {
	if strings.HasSuffix(symbol, "/USD") {
		return strings.TrimSuffix(symbol, "/USD") + "/USDT"
	}
	return symbol
}
