package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

var oneHour = decimal.NewFromInt(int64(time.Hour))

// ComputeCost bills max(1, hours) at pricePerHour, rounded half up to
// two places.  The rounding happens once on the exact product so a cost
// that lands on a half cent always rounds up.
func ComputeCost(start, end time.Time, pricePerHour decimal.Decimal) decimal.Decimal {
	d := end.Sub(start)
	if d < time.Hour {
		d = time.Hour
	}
	return decimal.NewFromInt(int64(d)).Mul(pricePerHour).DivRound(oneHour, 2)
}
