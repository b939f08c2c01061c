// Package price turns rendered catalog price labels into plain numeric strings.
package price

import (
	"strings"
	"unicode"
)

// unitMarkers start the currency/unit suffix the catalog prints right after the
// amount: "руб.", "₽", and "д" of the per-unit label.
var unitMarkers = []rune{'р', 'Р', '₽', 'д'}

// Normalize strips whitespace from raw, drops any label before the amount and cuts
// the rest at the first unit marker. Only digits and decimal separators survive.
// "1 234руб." becomes "1234", "от 199 ₽" becomes "199"; an empty label stays empty.
func Normalize(raw string) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	start := strings.IndexFunc(compact, unicode.IsDigit)
	if start < 0 {
		return ""
	}
	amount := compact[start:]

	if i := strings.IndexFunc(amount, isUnitMarker); i >= 0 {
		amount = amount[:i]
	}

	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == ',' || r == '.' {
			return r
		}
		return -1
	}, amount)
}

func isUnitMarker(r rune) bool {
	for _, m := range unitMarkers {
		if r == m {
			return true
		}
	}
	return false
}
