package ledger

import (
	"fmt"
	"math/rand"
	"regexp"
)

// NumberGenerator proposes account numbers. Proposals may collide; the
// ledger retries until one is free.
type NumberGenerator func() string

// numberSpace is the count of distinct 11-digit numbers.
const numberSpace = 100_000_000_000

var numberPattern = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$`)

// RandomNumber draws an account number uniformly from all 11-digit values.
func RandomNumber() string {
	return FormatNumber(rand.Int63n(numberSpace))
}

// FormatNumber renders n (mod 10^11) as DDD.DDD.DDD-DD.
func FormatNumber(n int64) string {
	if n < 0 {
		n = -n
	}
	n %= numberSpace
	s := fmt.Sprintf("%011d", n)
	return s[0:3] + "." + s[3:6] + "." + s[6:9] + "-" + s[9:11]
}

// ValidNumber reports whether s is formatted as DDD.DDD.DDD-DD.
func ValidNumber(s string) bool {
	return numberPattern.MatchString(s)
}
