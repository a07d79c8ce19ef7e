package booking

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeCost(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		dur   time.Duration
		price string
		want  string
	}{
		{"twenty minutes bills one hour", 20 * time.Minute, "10", "10.00"},
		{"zero duration bills one hour", 0, "7.5", "7.50"},
		{"exactly one hour", time.Hour, "10", "10.00"},
		{"ninety minutes", 90 * time.Minute, "10", "15.00"},
		{"three hour window", 3 * time.Hour, "10", "30.00"},
		{"rounds half up", 90 * time.Minute, "3.33", "5.00"},
		{"free lot", 5 * time.Hour, "0", "0.00"},
		{"repeating hours round half up", 3622 * time.Second, "9", "9.06"},
		{"repeating hours round half up again", 3626 * time.Second, "9", "9.07"},
		{"repeating hours below half", 3620 * time.Second, "9", "9.05"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeCost(start, start.Add(tc.dur), dec(tc.price))
			assert.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

// Every whole second between one and three hours is compared against an
// exact rational half-up result.
func TestComputeCostMatchesExactRounding(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	price := big.NewRat(9, 1)
	for s := int64(3600); s <= 10800; s++ {
		exact := new(big.Rat).Mul(big.NewRat(s, 3600), price)
		exact.Mul(exact, big.NewRat(100, 1))
		// half up: floor(x + 1/2) for non-negative x
		exact.Add(exact, big.NewRat(1, 2))
		cents := new(big.Int).Quo(exact.Num(), exact.Denom())

		got := ComputeCost(start, start.Add(time.Duration(s)*time.Second), dec("9"))
		want := decimal.NewFromBigInt(cents, -2)
		if !got.Equal(want) {
			t.Fatalf("duration %ds: got %s want %s", s, got, want)
		}
	}
}

func TestComputeCostMonotonicWithFloor(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	price := dec("4.20")
	prev := decimal.Zero
	for m := 0; m <= 600; m += 7 {
		got := ComputeCost(start, start.Add(time.Duration(m)*time.Minute), price)
		assert.True(t, got.GreaterThanOrEqual(prev), "minute %d", m)
		assert.True(t, got.GreaterThanOrEqual(price), "minute %d", m)
		prev = got
	}
}
