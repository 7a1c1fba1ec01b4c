// Package domain holds the instrument classification rules.
package domain

import (
	"strings"

	"ashare_sync/internal/feature/instruments/domain/entity"
)

// Instrument categories produced by Classify.
const (
	CategoryStock     = "stock"
	CategoryStockB    = "stock-b"
	CategoryIndex     = "index"
	CategoryETF       = "etf"
	CategoryBond      = "bond"
	CategoryFuture    = "future"
	CategoryUnknown   = "unknown"   // SZ fallback
	CategoryUndefined = "undefined" // SH fallback
)

type rule struct {
	prefixes []string
	category string
}

// Rules are evaluated in order and the first matching prefix wins.
var szRules = []rule{
	{[]string{"00", "30", "02"}, CategoryStock},
	{[]string{"39"}, CategoryIndex},
	{[]string{"15", "16"}, CategoryETF},
	{[]string{
		"101", "104", "105", "106", "107", "108", "109",
		"111", "112", "114", "115", "116", "117", "118", "119",
		"123", "127", "128",
		"131", "139",
	}, CategoryBond},
	{append([]string{
		"120", "121", "122", "124", "125", "126", "130",
		"132", "133", "134", "135", "136", "137", "138",
		"140", "141", "142", "143", "144", "145", "146", "147", "148",
	}, prefixRange(150, 199)...), CategoryFuture},
	{[]string{"20"}, CategoryStockB},
}

var shRules = []rule{
	{[]string{"6"}, CategoryStock},
	{[]string{"000", "880"}, CategoryIndex},
	{[]string{"51", "58"}, CategoryETF},
	{[]string{
		"102", "110", "113", "120", "122", "124",
		"130", "132", "133", "134", "135", "136",
		"140", "141", "143", "144", "147", "148",
	}, CategoryBond},
}

func prefixRange(from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, itoa3(i))
	}
	return out
}

func itoa3(i int) string {
	return string([]byte{byte('0' + i/100), byte('0' + i/10%10), byte('0' + i%10)})
}

// Classify maps a code to its instrument category using the market's prefix table.
// Codes matching no rule fall back to "unknown" on SZ and "undefined" on SH.
func Classify(code string, market entity.Market) string {
	switch market {
	case entity.MarketSZ:
		return match(code, szRules, CategoryUnknown)
	case entity.MarketSH:
		return match(code, shRules, CategoryUndefined)
	}
	return CategoryUndefined
}

func match(code string, rules []rule, fallback string) string {
	for _, r := range rules {
		for _, p := range r.prefixes {
			if strings.HasPrefix(code, p) {
				return r.category
			}
		}
	}
	return fallback
}

// IsStock reports whether code on market is a common A-share stock.
func IsStock(code string, market entity.Market) bool {
	return Classify(code, market) == CategoryStock
}
