package ledger_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coin-ledger/coins"
	"github.com/warp/coin-ledger/ledger"
	"github.com/warp/coin-ledger/record"
	"github.com/warp/coin-ledger/txn"
)

var p1 = uuid.MustParse("0b7c1f7e-55a4-4b42-9f39-41c8d0e8c2b9")

type fakeJournal struct {
	saved []*txn.Transaction
	err   error
}

func (j *fakeJournal) SaveTransaction(_ context.Context, tx *txn.Transaction) error {
	j.saved = append(j.saved, tx)
	return j.err
}

func newLedger(t *testing.T, opts ...ledger.Option) (*ledger.Ledger, *record.Memory) {
	t.Helper()
	mem := record.NewMemory()
	return ledger.New(mem, opts...), mem
}

func openAccount(t *testing.T, l *ledger.Ledger, player uuid.UUID) string {
	t.Helper()
	addr, err := l.CreatePrimaryAccount(context.Background(), player, "Main")
	require.NoError(t, err)
	return addr.Number
}

// =============================================================================
// PLAYERS AND ACCOUNT CREATION
// =============================================================================

func TestPlayerData_MissingIsSynthesized(t *testing.T) {
	l, mem := newLedger(t)

	p, err := l.PlayerData(context.Background(), p1)

	require.NoError(t, err)
	assert.Equal(t, p1, p.Player)
	assert.Equal(t, ledger.VersionStart, p.Version)
	assert.Nil(t, p.Primary)
	assert.Empty(t, p.Alternates)
	assert.Equal(t, 0, mem.Writes(), "reading must not materialize the record")
}

func TestPlayerData_ReadsAlternates(t *testing.T) {
	l, mem := newLedger(t)
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, ledger.PlayerPath(p1), record.Record{
		"id":                   p1.String(),
		"version":              "-2147483640",
		"account":              "111.111.111-11;Main",
		"alternative.accounts": "222.222.222-22;Savings|333.333.333-33;Shop",
	}, ""))

	p, err := l.PlayerData(ctx, p1)

	require.NoError(t, err)
	assert.Equal(t, int64(-2147483640), p.Version)
	require.NotNil(t, p.Primary)
	assert.Equal(t, txn.AccountAddress{Number: "111.111.111-11", Name: "Main", Owner: p1}, *p.Primary)
	assert.Equal(t, []txn.AccountAddress{
		{Number: "222.222.222-22", Name: "Savings", Owner: p1},
		{Number: "333.333.333-33", Name: "Shop", Owner: p1},
	}, p.Alternates)
}

func TestPlayerData_MalformedIsDataError(t *testing.T) {
	l, mem := newLedger(t)
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, ledger.PlayerPath(p1), record.Record{"account": "no-separator"}, ""))

	_, err := l.PlayerData(ctx, p1)

	assert.ErrorIs(t, err, record.ErrData)
	var de *record.DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ledger.PlayerPath(p1), de.Path)
}

func TestCreatePrimaryAccount(t *testing.T) {
	l, mem := newLedger(t)
	ctx := context.Background()

	addr, err := l.CreatePrimaryAccount(ctx, p1, "Main")

	require.NoError(t, err)
	assert.Regexp(t, `^\d{3}\.\d{3}\.\d{3}-\d{2}$`, addr.Number)
	assert.Equal(t, "Main", addr.Name)
	assert.Equal(t, p1, addr.Owner)

	acct, ok, err := l.Account(ctx, addr.Number)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.Account{Number: addr.Number, Owner: p1, Balance: 0, Version: ledger.VersionStart}, acct)
	assert.Equal(t, "Recently created", mem.Header(ledger.AccountPath(addr.Number)))

	p, err := l.PlayerData(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, ledger.VersionStart+1, p.Version)
	assert.Equal(t, &addr, p.Primary)
	assert.Equal(t, "Primary account created", mem.Header(ledger.PlayerPath(p1)))
}

func TestCreatePrimaryAccount_Twice(t *testing.T) {
	l, mem := newLedger(t)
	ctx := context.Background()
	first := openAccount(t, l, p1)
	writes := mem.Writes()

	_, err := l.CreatePrimaryAccount(ctx, p1, "Other")

	assert.ErrorIs(t, err, ledger.ErrAlreadyHasAccount)
	assert.Equal(t, writes, mem.Writes())
	p, err := l.PlayerData(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, first, p.Primary.Number)
	assert.Equal(t, "Main", p.Primary.Name)
}

func TestCreatePrimaryAccount_RetriesOnCollision(t *testing.T) {
	// GIVEN: a generator that proposes an existing number twice before a new one
	proposals := []string{"000.000.000-01", "000.000.000-01", "000.000.000-01", "000.000.000-02"}
	next := 0
	gen := func() string {
		n := proposals[next]
		next++
		return n
	}
	l, _ := newLedger(t, ledger.WithNumberGenerator(gen, 0))
	ctx := context.Background()

	// WHEN: two players open accounts
	a, err := l.CreatePrimaryAccount(ctx, p1, "A")
	require.NoError(t, err)
	b, err := l.CreatePrimaryAccount(ctx, uuid.New(), "B")
	require.NoError(t, err)

	// THEN: the second skipped the taken number
	assert.Equal(t, "000.000.000-01", a.Number)
	assert.Equal(t, "000.000.000-02", b.Number)
	assert.Equal(t, 4, next)
}

func TestCreatePrimaryAccount_ManyAreUnique(t *testing.T) {
	l, _ := newLedger(t)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		n := openAccount(t, l, uuid.New())
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}

func TestCreatePrimaryAccount_GivesUp(t *testing.T) {
	l, mem := newLedger(t, ledger.WithNumberGenerator(func() string { return "000.000.000-00" }, 3))
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, ledger.AccountPath("000.000.000-00"), record.Record{}, ""))

	_, err := l.CreatePrimaryAccount(ctx, p1, "Main")

	assert.ErrorIs(t, err, ledger.ErrNoFreeNumber)
}

func TestCreatePrimaryAccount_PlayerWriteFailsLeavesAccount(t *testing.T) {
	l, mem := newLedger(t, ledger.WithNumberGenerator(func() string { return "123.456.789-01" }, 0))
	ctx := context.Background()
	mem.FailOn("players/")

	_, err := l.CreatePrimaryAccount(ctx, p1, "Main")

	assert.ErrorIs(t, err, record.ErrStore)
	exists, _ := mem.Exists(ctx, ledger.AccountPath("123.456.789-01"))
	assert.True(t, exists, "no rollback of the account write")
}

func TestCreatePrimaryAccount_RejectsReservedName(t *testing.T) {
	l, mem := newLedger(t)

	_, err := l.CreatePrimaryAccount(context.Background(), p1, "a;b")

	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
	assert.Equal(t, 0, mem.Writes())
}

// =============================================================================
// READS
// =============================================================================

func TestAccountBalance_NotFound(t *testing.T) {
	l, _ := newLedger(t)

	bal, err := l.AccountBalance(context.Background(), "999.999.999-99")

	require.NoError(t, err)
	assert.Equal(t, ledger.NotFound, bal)
}

func TestAccountOwner(t *testing.T) {
	l, mem := newLedger(t)
	ctx := context.Background()
	n := openAccount(t, l, p1)

	owner, ok, err := l.AccountOwner(ctx, n)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, p1, owner)

	_, ok, err = l.AccountOwner(ctx, "000.000.000-00")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mem.Save(ctx, ledger.AccountPath("bad"), record.Record{"owner.id": "not-a-uuid", "balance": "0"}, ""))
	_, _, err = l.AccountOwner(ctx, "bad")
	assert.ErrorIs(t, err, record.ErrData)
}

func TestAccount_NegativeStoredBalanceIsDataError(t *testing.T) {
	l, mem := newLedger(t)
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, ledger.AccountPath("neg"), record.Record{"owner.id": p1.String(), "balance": "-5"}, ""))

	_, err := l.AccountBalance(ctx, "neg")

	assert.ErrorIs(t, err, record.ErrData)
}

func TestCanDeposit(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	n := openAccount(t, l, p1)

	room, err := l.CanDeposit(ctx, n, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32-10), room)

	room, err = l.CanDepositStacks(ctx, n, nil, coins.Stack{Item: coins.ItemSmallCoinStack, Amount: 2})
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32-18), room)

	_, err = l.CanDeposit(ctx, "000.000.000-00", 1)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestAcceptsDeposit(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	n := openAccount(t, l, p1)

	ok, err := l.AcceptsDeposit(ctx, p1, n, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.AcceptsDeposit(ctx, uuid.New(), n, 100)
	require.NoError(t, err)
	assert.False(t, ok, "other owner")

	ok, err = l.AcceptsDeposit(ctx, p1, n, math.MaxInt32)
	require.NoError(t, err)
	assert.False(t, ok, "must stay strictly below the cap")

	ok, err = l.AcceptsDeposit(ctx, p1, "000.000.000-00", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// MUTATIONS
// =============================================================================

func TestScenario_DepositWithdraw(t *testing.T) {
	journal := &fakeJournal{}
	l, mem := newLedger(t, ledger.WithJournal(journal))
	ctx := context.Background()
	n := openAccount(t, l, p1)

	// Deposit 1000
	bal, err := l.DepositToAccount(ctx, n, 1000, txn.New(txn.OpDepositToAccount, txn.PlayerOperator(p1)))
	require.NoError(t, err)
	assert.Equal(t, int32(1000), bal)
	acct, _, _ := l.Account(ctx, n)
	assert.Equal(t, ledger.VersionStart+1, acct.Version)
	assert.Equal(t, "Balance increased by 1000", mem.Header(ledger.AccountPath(n)))

	// Withdraw 1500 fails with shortfall 500
	writes := mem.Writes()
	_, err = l.TakeFromAccount(ctx, n, 1500, txn.New(txn.OpWithdrawFromAccount, txn.PlayerOperator(p1)))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	var short *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int32(500), short.Shortfall)
	assert.Equal(t, writes, mem.Writes())
	bal, _ = l.AccountBalance(ctx, n)
	assert.Equal(t, int32(1000), bal)

	// Withdraw 1000
	bal, err = l.TakeFromAccount(ctx, n, 1000, txn.New(txn.OpWithdrawFromAccount, txn.PlayerOperator(p1)))
	require.NoError(t, err)
	assert.Equal(t, int32(0), bal)
	assert.Equal(t, "Took 1000 from balance", mem.Header(ledger.AccountPath(n)))
	acct, _, _ = l.Account(ctx, n)
	assert.Equal(t, ledger.VersionStart+2, acct.Version)

	assert.Len(t, journal.saved, 2, "only committed mutations are journaled")
}

func TestTakeFromAccount_ZeroAndNegative(t *testing.T) {
	l, mem := newLedger(t)
	ctx := context.Background()
	n := openAccount(t, l, p1)
	_, err := l.DepositToAccount(ctx, n, 42, nil)
	require.NoError(t, err)
	writes := mem.Writes()

	bal, err := l.TakeFromAccount(ctx, n, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(42), bal)

	_, err = l.TakeFromAccount(ctx, n, -1, nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)

	assert.Equal(t, writes, mem.Writes())
}

func TestDepositToAccount_ZeroAndNegative(t *testing.T) {
	l, mem := newLedger(t)
	ctx := context.Background()
	n := openAccount(t, l, p1)
	writes := mem.Writes()

	bal, err := l.DepositToAccount(ctx, n, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), bal)

	_, err = l.DepositToAccount(ctx, n, -5, nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)

	assert.Equal(t, writes, mem.Writes())
}

func TestDepositToAccount_OverflowRejectedWhole(t *testing.T) {
	var logs bytes.Buffer
	journal := &fakeJournal{}
	l, mem := newLedger(t, ledger.WithJournal(journal), ledger.WithLogger(log.New(&logs, "", 0)))
	ctx := context.Background()
	n := openAccount(t, l, p1)

	bal, err := l.DepositToAccount(ctx, n, math.MaxInt32, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), bal)
	writes := mem.Writes()

	bal, err = l.DepositToAccount(ctx, n, 1, txn.New(txn.OpDepositToAccount, txn.PlayerOperator(p1)))

	require.NoError(t, err)
	assert.Equal(t, int32(0), bal)
	assert.Equal(t, writes, mem.Writes())
	stored, _ := l.AccountBalance(ctx, n)
	assert.Equal(t, int32(math.MaxInt32), stored)
	assert.Empty(t, journal.saved)
	assert.Contains(t, logs.String(), "would overflow")
}

func TestMutations_MissingAccount(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.DepositToAccount(ctx, "000.000.000-00", 5, nil)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = l.TakeFromAccount(ctx, "000.000.000-00", 5, nil)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestDepositStacks(t *testing.T) {
	l, mem := newLedger(t)
	ctx := context.Background()
	n := openAccount(t, l, p1)

	bal, err := l.DepositStacks(ctx, n, nil, []coins.Stack{
		{Item: coins.ItemCoin, Amount: 3},
		{Item: coins.ItemLargeCoinStack, Amount: 1},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(84), bal)

	writes := mem.Writes()
	bal, err = l.DepositStacks(ctx, "000.000.000-00", nil, []coins.Stack{{Item: "minecraft:dirt", Amount: 64}}, nil)
	require.NoError(t, err, "zero value never loads the account")
	assert.Equal(t, int32(0), bal)
	assert.Equal(t, writes, mem.Writes())

	huge := func(coins.Stack) int64 { return math.MaxInt32 }
	bal, err = l.DepositStacks(ctx, n, huge, []coins.Stack{{}, {}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), bal, "values beyond the unit range are rejected whole")
}

func TestJournalFailureIsSwallowed(t *testing.T) {
	var logs bytes.Buffer
	journal := &fakeJournal{err: errors.New("disk full")}
	l, _ := newLedger(t, ledger.WithJournal(journal), ledger.WithLogger(log.New(&logs, "", 0)))
	ctx := context.Background()
	n := openAccount(t, l, p1)
	tx := txn.New(txn.OpDepositToAccount, txn.PlayerOperator(p1))

	bal, err := l.DepositToAccount(ctx, n, 250, tx)

	require.NoError(t, err)
	assert.Equal(t, int32(250), bal)
	stored, _ := l.AccountBalance(ctx, n)
	assert.Equal(t, int32(250), stored, "committed balance stays")
	assert.Contains(t, logs.String(), tx.ID.String())
	assert.Contains(t, logs.String(), "disk full")
}

func TestStoreFailureSkipsJournal(t *testing.T) {
	journal := &fakeJournal{}
	l, mem := newLedger(t, ledger.WithJournal(journal))
	ctx := context.Background()
	n := openAccount(t, l, p1)
	mem.FailOn("accounts/")

	_, err := l.DepositToAccount(ctx, n, 5, txn.New(txn.OpDepositToAccount, txn.PlayerOperator(p1)))

	assert.ErrorIs(t, err, record.ErrStore)
	assert.Empty(t, journal.saved)
}

// =============================================================================
// NUMBERS
// =============================================================================

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "000.000.000-00", ledger.FormatNumber(0))
	assert.Equal(t, "123.456.789-01", ledger.FormatNumber(12345678901))
	assert.Equal(t, "999.999.999-99", ledger.FormatNumber(99999999999))
	assert.True(t, ledger.ValidNumber(ledger.RandomNumber()))
	assert.False(t, ledger.ValidNumber("123456789-01"))
}
