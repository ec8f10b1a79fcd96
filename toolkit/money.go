package toolkit

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatCents renders an amount of cents as dollars, e.g. "$1,234.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(cents/100), cents%100)
}

// mulRound multiplies a quantity by a rate in cents, rounding half up.
func mulRound(quantity float64, rateCents int64) int64 {
	v := quantity * float64(rateCents)
	if v < 0 {
		return -int64(-v + 0.5)
	}
	return int64(v + 0.5)
}
