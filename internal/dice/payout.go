package dice

import (
	"math"
	"math/bits"
)

const (
	// MaxSide is the highest side a wager may name.
	// Side 6 is accepted but can never match t % 6.
	MaxSide = 6

	// PayoutPercent is the bonus fixed into every pool at initialization.
	PayoutPercent = 90

	// faces is the modulus of the outcome rule.
	faces = 6
)

// Payout returns floor(amount * (100 + percent) / 100).
// The product is computed on 128 bits; a quotient above MaxUint64 saturates.
func Payout(amount uint64, percent uint8) uint64 {
	hi, lo := bits.Mul64(amount, 100+uint64(percent))

	// Div64 panics when the quotient does not fit.
	if hi >= 100 {
		return math.MaxUint64
	}

	q, _ := bits.Div64(hi, lo, 100)

	return q
}

// Wins reports whether a wager on side wins at time t.
// The remainder is truncated toward zero, so a negative t wins only for
// side 0 at multiples of 6.
func Wins(t int64, side uint8) bool {
	return t%faces == int64(side)
}
