/*
Package ledger owns accounts and player records and applies balance changes.

PURPOSE:
  The ledger is the only writer of accounts/ and players/. Every mutation
  validates first and writes second: a rejected deposit or withdrawal never
  touches the account file.

CRITICAL INVARIANTS:
  1. BOUNDED: 0 <= balance <= coins.MaxUnits, checked before every write
  2. VERSIONED: each account/player write bumps version by exactly one,
     starting from VersionStart
  3. COMMIT FIRST: the balance write happens before the journal is told; a
     journal failure is logged and never undoes the balance change

WEAK POINTS (accepted):
  - CreatePrimaryAccount writes the account, then the player. A failure in
    between leaves an unreferenced account. There is no rollback.
  - A deposit that would overflow is rejected as a whole and returns 0. No
    partial credit is given.

CONCURRENCY:
  None internally. The host serializes calls; at most one writer per path.

SEE ALSO:
  - records.go: Account, PlayerRecord and their record fields
  - number.go: account number generation
  - journal/journal.go: the Journal passed with WithJournal
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/coin-ledger/coins"
	"github.com/warp/coin-ledger/record"
	"github.com/warp/coin-ledger/txn"
)

// =============================================================================
// LEDGER
// =============================================================================

// Journal receives committed transactions.
type Journal interface {
	SaveTransaction(ctx context.Context, tx *txn.Transaction) error
}

// ErrNoFreeNumber is returned when no unused account number was found within
// the retry limit.
var ErrNoFreeNumber = errors.New("ledger: no free account number")

const defaultNumberAttempts = 1000

type Ledger struct {
	store    record.Store
	journal  Journal
	logger   *log.Logger
	numbers  NumberGenerator
	attempts int
}

type Option func(*Ledger)

// WithJournal sets where committed transactions are recorded.
func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithNumberGenerator replaces RandomNumber. attempts bounds the retries on
// collision; values below 1 keep the default.
func WithNumberGenerator(gen NumberGenerator, attempts int) Option {
	return func(l *Ledger) {
		l.numbers = gen
		if attempts > 0 {
			l.attempts = attempts
		}
	}
}

func New(store record.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		logger:   log.Default(),
		numbers:  RandomNumber,
		attempts: defaultNumberAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// PLAYERS
// =============================================================================

// PlayerData returns the player's record, or a fresh one with VersionStart
// and no accounts when none is stored.
func (l *Ledger) PlayerData(ctx context.Context, player uuid.UUID) (PlayerRecord, error) {
	path := PlayerPath(player)
	rec, ok, err := l.store.Load(ctx, path)
	if err != nil {
		return PlayerRecord{}, err
	}
	if !ok {
		return freshPlayer(player), nil
	}
	p, err := decodePlayer(player, rec)
	if err != nil {
		return PlayerRecord{}, record.InPath(err, path)
	}
	return p, nil
}

// CreatePrimaryAccount opens the player's primary account with balance 0.
func (l *Ledger) CreatePrimaryAccount(ctx context.Context, player uuid.UUID, name string) (txn.AccountAddress, error) {
	if strings.ContainsAny(name, ";|\n") {
		return txn.AccountAddress{}, fmt.Errorf("%w: account name %q contains a reserved character", ErrInvalidArgument, name)
	}
	p, err := l.PlayerData(ctx, player)
	if err != nil {
		return txn.AccountAddress{}, err
	}
	if p.Primary != nil {
		return txn.AccountAddress{}, fmt.Errorf("%w: %s has %s", ErrAlreadyHasAccount, player, p.Primary.Number)
	}

	number, err := l.freeNumber(ctx)
	if err != nil {
		return txn.AccountAddress{}, err
	}
	acct := Account{Number: number, Owner: player, Version: VersionStart}
	if err := l.store.Save(ctx, AccountPath(number), acct.record(), "Recently created"); err != nil {
		return txn.AccountAddress{}, err
	}

	addr := txn.AccountAddress{Number: number, Name: name, Owner: player}
	p.Primary = &addr
	p.Version++
	if err := l.store.Save(ctx, PlayerPath(player), p.record(), "Primary account created"); err != nil {
		return txn.AccountAddress{}, err
	}
	return addr, nil
}

func (l *Ledger) freeNumber(ctx context.Context) (string, error) {
	for i := 0; i < l.attempts; i++ {
		number := l.numbers()
		exists, err := l.store.Exists(ctx, AccountPath(number))
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrNoFreeNumber, l.attempts)
}

// =============================================================================
// ACCOUNTS - Reads
// =============================================================================

// Account loads the account. ok is false when it does not exist.
func (l *Ledger) Account(ctx context.Context, number string) (acct Account, ok bool, err error) {
	path := AccountPath(number)
	rec, ok, err := l.store.Load(ctx, path)
	if err != nil || !ok {
		return Account{}, false, err
	}
	acct, err = decodeAccount(number, rec)
	if err != nil {
		return Account{}, true, record.InPath(err, path)
	}
	return acct, true, nil
}

func (l *Ledger) mustAccount(ctx context.Context, number string) (Account, error) {
	acct, ok, err := l.Account(ctx, number)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, notFound(number)
	}
	return acct, nil
}

// AccountOwner returns the owner of the account. ok is false when the account
// does not exist.
func (l *Ledger) AccountOwner(ctx context.Context, number string) (uuid.UUID, bool, error) {
	acct, ok, err := l.Account(ctx, number)
	if err != nil || !ok {
		return uuid.Nil, false, err
	}
	return acct.Owner, true, nil
}

// AccountBalance returns the balance, or NotFound when the account does not
// exist.
func (l *Ledger) AccountBalance(ctx context.Context, number string) (int32, error) {
	acct, ok, err := l.Account(ctx, number)
	if err != nil {
		return 0, err
	}
	if !ok {
		return NotFound, nil
	}
	return acct.Balance, nil
}

// CanDeposit returns the headroom left after depositing amount; negative
// means it would overflow.
func (l *Ledger) CanDeposit(ctx context.Context, number string, amount int64) (int32, error) {
	acct, err := l.mustAccount(ctx, number)
	if err != nil {
		return 0, err
	}
	return coins.CanDeposit(int64(acct.Balance), amount), nil
}

// CanDepositStacks is CanDeposit for the value of coin stacks.
func (l *Ledger) CanDepositStacks(ctx context.Context, number string, fn coins.ValueFunc, stacks ...coins.Stack) (int32, error) {
	value, err := coins.StackValue(fn, stacks...)
	if err != nil {
		return 0, err
	}
	return l.CanDeposit(ctx, number, value)
}

// AcceptsDeposit reports whether a card held by owner may pay amount into the
// account: the account exists, belongs to owner and stays strictly below
// coins.MaxUnits.
func (l *Ledger) AcceptsDeposit(ctx context.Context, owner uuid.UUID, number string, amount int64) (bool, error) {
	acct, ok, err := l.Account(ctx, number)
	if err != nil || !ok {
		return false, err
	}
	if acct.Owner != owner || acct.Balance < 0 {
		return false, nil
	}
	return coins.Headroom(int64(acct.Balance), amount) > 0, nil
}

// =============================================================================
// ACCOUNTS - Mutations
// =============================================================================

// TakeFromAccount withdraws amount and returns the new balance. A zero amount
// returns the current balance without writing.
func (l *Ledger) TakeFromAccount(ctx context.Context, number string, amount int32, tx *txn.Transaction) (int32, error) {
	if amount < 0 {
		return 0, invalidAmount("withdraw", amount)
	}
	acct, err := l.mustAccount(ctx, number)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return acct.Balance, nil
	}
	if acct.Balance < amount {
		return acct.Balance, &InsufficientFundsError{
			Account:   number,
			Balance:   acct.Balance,
			Requested: amount,
			Shortfall: amount - acct.Balance,
		}
	}

	acct.Balance -= amount
	acct.Version++
	if err := l.store.Save(ctx, AccountPath(number), acct.record(), fmt.Sprintf("Took %d from balance", amount)); err != nil {
		return 0, err
	}
	l.journalize(ctx, tx)
	return acct.Balance, nil
}

// DepositToAccount credits amount and returns the new balance. A zero amount
// is a no-op returning 0. A deposit that would overflow is discarded whole:
// nothing is written and 0 is returned.
func (l *Ledger) DepositToAccount(ctx context.Context, number string, amount int32, tx *txn.Transaction) (int32, error) {
	if amount < 0 {
		return 0, invalidAmount("deposit", amount)
	}
	return l.deposit(ctx, number, int64(amount), tx)
}

// DepositStacks credits the value of stacks. Zero-valued stacks return 0
// without loading the account.
func (l *Ledger) DepositStacks(ctx context.Context, number string, fn coins.ValueFunc, stacks []coins.Stack, tx *txn.Transaction) (int32, error) {
	value, err := coins.StackValue(fn, stacks...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return l.deposit(ctx, number, value, tx)
}

func (l *Ledger) deposit(ctx context.Context, number string, amount int64, tx *txn.Transaction) (int32, error) {
	if amount == 0 {
		return 0, nil
	}
	acct, err := l.mustAccount(ctx, number)
	if err != nil {
		return 0, err
	}
	if coins.CanDeposit(int64(acct.Balance), amount) < 0 {
		l.logger.Printf("ledger: deposit of %d into %s rejected: balance %d would overflow", amount, number, acct.Balance)
		return 0, nil
	}

	acct.Balance += int32(amount)
	acct.Version++
	if err := l.store.Save(ctx, AccountPath(number), acct.record(), fmt.Sprintf("Balance increased by %d", amount)); err != nil {
		return 0, err
	}
	l.journalize(ctx, tx)
	return acct.Balance, nil
}

// journalize hands a committed transaction to the journal. Failures are
// logged and dropped: the balance change already happened.
func (l *Ledger) journalize(ctx context.Context, tx *txn.Transaction) {
	if l.journal == nil || tx == nil {
		return
	}
	if err := l.journal.SaveTransaction(ctx, tx); err != nil {
		l.logger.Printf("ledger: journal transaction %s: %v", tx.ID, err)
	}
}
