package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// DutchPrice computes the instantaneous price of a descending auction. The
// price falls linearly from start at startTime to reserve at endTime and is
// rounded to a whole currency unit.
//
// Before startTime the price is start; at or after endTime it is reserve.
func DutchPrice(start, reserve decimal.Decimal, startTime, endTime, now time.Time) decimal.Decimal {
	if now.Before(startTime) {
		return start
	}
	if !now.Before(endTime) || !endTime.After(startTime) {
		return reserve
	}
	if reserve.GreaterThanOrEqual(start) {
		return start
	}

	elapsed := decimal.NewFromInt(now.Sub(startTime).Nanoseconds())
	window := decimal.NewFromInt(endTime.Sub(startTime).Nanoseconds())

	drop := start.Sub(reserve).Mul(elapsed).Div(window)
	price := start.Sub(drop).Round(0)

	// Rounding must never push the price outside the [reserve, start] range.
	if price.LessThan(reserve) {
		return reserve
	}
	if price.GreaterThan(start) {
		return start
	}
	return price
}
