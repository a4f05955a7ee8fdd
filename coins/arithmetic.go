/*
Package coins holds the bounded currency arithmetic and coin item values.

PURPOSE:
  Balances are 32-bit signed unit counts. Adding to one must never wrap
  around, so every capacity check goes through Headroom, which does the sum
  in 64 bits and only then clamps back into the 32-bit range.

KEY CONCEPTS:
  - MaxUnits / MinUnits: the representable range of a balance
  - Headroom: MaxUnits - (balance + delta), clamped; negative = overflow
  - Fit: how many coins of one denomination a tally can still take
  - Stack / ValueFunc: coin items as the host hands them over, and their value

EXAMPLE:
  coins.Headroom(math.MaxInt32-10, 4)   //  6: fits, 6 units left
  coins.Headroom(math.MaxInt32-10, 15)  // -5: would overflow by 5
  coins.Headroom(math.MaxInt32, math.MaxInt32) // -2147483647, no wraparound

SEE ALSO:
  - value.go: Stack, Denomination, StackValue
  - ledger/ledger.go: deposit pre-checks
*/
package coins

import "math"

// =============================================================================
// BOUNDS
// =============================================================================

const (
	MaxUnits int32 = math.MaxInt32
	MinUnits int32 = math.MinInt32
)

// =============================================================================
// HEADROOM
// =============================================================================

// Headroom returns MaxUnits - (balance + delta) computed with a 64-bit
// intermediate and clamped into [MinUnits, MaxUnits]. A negative result means
// adding delta would overflow; its magnitude is the excess.
func Headroom(balance, delta int64) int32 {
	left := int64(MaxUnits) - (balance + delta)
	switch {
	case left < int64(MinUnits):
		return MinUnits
	case left > int64(MaxUnits):
		return MaxUnits
	}
	return int32(left)
}

// CanDeposit is Headroom under the name deposit callers use.
func CanDeposit(balance, amount int64) int32 {
	return Headroom(balance, amount)
}

// Fits reports whether amount can be added to balance without overflow.
func Fits(balance, amount int64) bool {
	return Headroom(balance, amount) >= 0
}

// Fit returns how many of count coins worth unitValue each can be added to a
// tally currently at current without exceeding MaxUnits.
func Fit(current int32, unitValue, count int) int {
	if unitValue <= 0 || count <= 0 || current < 0 {
		return 0
	}
	room := (int64(MaxUnits) - int64(current)) / int64(unitValue)
	if room < int64(count) {
		return int(room)
	}
	return count
}
