/*
errors.go - Error types of the account ledger

PURPOSE:
  Sentinels for the caller-facing failures of ledger operations. Storage
  and data failures come from the record package (record.ErrStore,
  record.ErrData) and pass through unchanged.

USAGE:

    _, err := l.TakeFromAccount(ctx, number, 1500, tx)
    var short *ledger.InsufficientFundsError
    if errors.As(err, &short) {
        // short.Shortfall == 500
    }

SEE ALSO:
  - ledger.go: operations returning these errors
  - record/errors.go: StoreError, DataError
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidArgument is returned for a negative deposit or withdrawal.
	ErrInvalidArgument = errors.New("ledger: invalid argument")

	// ErrInsufficientFunds is returned when a withdrawal would leave the
	// balance negative.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrAlreadyHasAccount is returned when creating a primary account for a
	// player that already has one.
	ErrAlreadyHasAccount = errors.New("ledger: player already has a primary account")

	// ErrAccountNotFound is returned when a mutation or deposit check names an
	// account that does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError provides details about a rejected withdrawal.
type InsufficientFundsError struct {
	Account   string
	Balance   int32
	Requested int32
	Shortfall int32
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("ledger: insufficient funds in %s: balance %d, requested %d, shortfall %d",
		e.Account, e.Balance, e.Requested, e.Shortfall)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

func invalidAmount(op string, amount int32) error {
	return fmt.Errorf("%w: %s amount %d is negative", ErrInvalidArgument, op, amount)
}

func notFound(number string) error {
	return fmt.Errorf("%w: %s", ErrAccountNotFound, number)
}
