package coins

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STACKS - Coin items as handed over by the host
// =============================================================================

// Stack is an item stack: an item kind, its damage/meta value, a count and
// optional serialized tag data. The ledger only reads it; the host owns the
// item registry.
type Stack struct {
	Item   string
	Meta   int
	Amount int
	Tags   string
}

// String renders the stack the way the host prints item stacks.
func (s Stack) String() string {
	return fmt.Sprintf("%dx%s@%d", s.Amount, s.Item, s.Meta)
}

// ValueFunc converts a stack into currency units. It is supplied by the host.
type ValueFunc func(Stack) int64

// Standard coin items and their unit value. Each tier is worth nine of the
// one below it.
const (
	ItemCoin           = "universalcoins:itemCoin"
	ItemSmallCoinStack = "universalcoins:itemSmallCoinStack"
	ItemLargeCoinStack = "universalcoins:itemLargeCoinStack"
	ItemSmallCoinBag   = "universalcoins:itemSmallCoinBag"
	ItemLargeCoinBag   = "universalcoins:itemLargeCoinBag"
)

var Denominations = map[string]int64{
	ItemCoin:           1,
	ItemSmallCoinStack: 9,
	ItemLargeCoinStack: 81,
	ItemSmallCoinBag:   729,
	ItemLargeCoinBag:   6561,
}

// DenominationValue is a ValueFunc over Denominations. Unknown items are
// worth nothing.
func DenominationValue(s Stack) int64 {
	if s.Amount <= 0 {
		return 0
	}
	return Denominations[s.Item] * int64(s.Amount)
}

var (
	ErrNegativeValue = errors.New("coins: negative stack value")
	ErrValueOverflow = errors.New("coins: stack value exceeds 64-bit range")
)

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// StackValue sums the value of stacks. The sum is exact; it is returned even
// when it exceeds MaxUnits so callers can report the overflow through
// Headroom.
func StackValue(fn ValueFunc, stacks ...Stack) (int64, error) {
	if fn == nil {
		fn = DenominationValue
	}
	total := decimal.Zero
	for _, s := range stacks {
		v := fn(s)
		if v < 0 {
			return 0, fmt.Errorf("%w: %s = %d", ErrNegativeValue, s, v)
		}
		total = total.Add(decimal.NewFromInt(v))
	}
	if total.GreaterThan(maxInt64) {
		return 0, ErrValueOverflow
	}
	return total.IntPart(), nil
}

// Split breaks units into the fewest coin stacks of the standard
// denominations, largest first. Stack size is capped at maxStack items.
func Split(units int64, maxStack int) []Stack {
	if units <= 0 || maxStack <= 0 {
		return nil
	}
	tiers := []string{ItemLargeCoinBag, ItemSmallCoinBag, ItemLargeCoinStack, ItemSmallCoinStack, ItemCoin}
	var out []Stack
	for _, item := range tiers {
		v := Denominations[item]
		n := units / v
		for n > 0 {
			c := n
			if c > int64(maxStack) {
				c = int64(maxStack)
			}
			out = append(out, Stack{Item: item, Amount: int(c)})
			n -= c
			units -= c * v
		}
	}
	return out
}
