package services

import (
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

// FormatMinorUnits renders an amount in minor units using the currency's standard scale,
// e.g. 1990 USD -> "19.90" and 1990 JPY -> "1990".
func FormatMinorUnits(amount int64, code string) string {
	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}

	negative := amount < 0
	if negative {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	if scale > 0 {
		if len(digits) <= scale {
			digits = strings.Repeat("0", scale-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	}
	if negative {
		return "-" + digits
	}
	return digits
}
