package txn

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/coin-ledger/coins"
)

// =============================================================================
// OPERATION - What kind of economic event happened
// =============================================================================

type Operation string

const (
	OpDepositFromMachine  Operation = "DEPOSIT_FROM_MACHINE"
	OpWithdrawFromMachine Operation = "WITHDRAW_FROM_MACHINE"
	OpBuyFromMachine      Operation = "BUY_FROM_MACHINE"
	OpSellToMachine       Operation = "SELL_TO_MACHINE"
	OpDepositToAccount    Operation = "DEPOSIT_TO_ACCOUNT"
	OpWithdrawFromAccount Operation = "WITHDRAW_FROM_ACCOUNT"
)

func (o Operation) IsValid() bool {
	switch o {
	case OpDepositFromMachine, OpWithdrawFromMachine, OpBuyFromMachine,
		OpSellToMachine, OpDepositToAccount, OpWithdrawFromAccount:
		return true
	}
	return false
}

// =============================================================================
// COIN SOURCE - Where one side's coins came from
// =============================================================================

type SourceKind string

const (
	SourceMachine   SourceKind = "machine"
	SourceCard      SourceKind = "card"
	SourceInventory SourceKind = "inventory"
)

// CoinSource describes one side of a transaction. Kind selects which fields
// are meaningful:
//
//	SourceMachine:   MachineID
//	SourceCard:      Account, and Card when a physical card was used
//	SourceInventory: Holder
//
// BalanceBefore and BalanceAfter are carried by every kind.
type CoinSource struct {
	Kind          SourceKind
	BalanceBefore int32
	BalanceAfter  int32

	MachineID string
	Account   AccountAddress
	Card      *coins.Stack
	Holder    Operator
}

func MachineSource(m Machine, before, after int32) *CoinSource {
	return &CoinSource{Kind: SourceMachine, MachineID: m.MachineID(), BalanceBefore: before, BalanceAfter: after}
}

func AccountSource(account AccountAddress, card *coins.Stack, before, after int32) *CoinSource {
	return &CoinSource{Kind: SourceCard, Account: account, Card: card, BalanceBefore: before, BalanceAfter: after}
}

func InventorySource(holder Operator, before, after int32) *CoinSource {
	return &CoinSource{Kind: SourceInventory, Holder: holder, BalanceBefore: before, BalanceAfter: after}
}

func (s *CoinSource) String() string {
	if s == nil {
		return "none"
	}
	var who string
	switch s.Kind {
	case SourceMachine:
		who = "machine:" + s.MachineID
	case SourceCard:
		who = "card:" + s.Account.Number
	case SourceInventory:
		who = "inventory:" + s.Holder.String()
	default:
		who = string(s.Kind)
	}
	return fmt.Sprintf("%s(%d->%d)", who, s.BalanceBefore, s.BalanceAfter)
}

// =============================================================================
// TRANSACTION
// =============================================================================

// Transaction is one balance-affecting event. It is built by the caller and
// must not be modified once handed to a journal.
type Transaction struct {
	ID         uuid.UUID
	Time       time.Time
	Operation  Operation
	Quantity   int
	Price      int32
	TotalPrice int32
	Infinite   bool

	UserSource  *CoinSource
	OwnerSource *CoinSource
	Operator    Operator
	Machine     Machine // nil when not machine-mediated
	Product     *coins.Stack
	Trade       *coins.Stack
}

// String renders the transaction for the plaintext machine log.
func (t *Transaction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transaction{id=%s, time=%d, operation=%s, quantity=%d, price=%d, total=%d, infinite=%t",
		t.ID, t.Time.UnixMilli(), t.Operation, t.Quantity, t.Price, t.TotalPrice, t.Infinite)
	fmt.Fprintf(&b, ", operator=%s, user=%s, owner=%s", t.Operator, t.UserSource, t.OwnerSource)
	if t.Machine != nil {
		fmt.Fprintf(&b, ", machine=%s", t.Machine.MachineID())
	}
	if t.Product != nil {
		fmt.Fprintf(&b, ", product=%s", t.Product)
	}
	if t.Trade != nil {
		fmt.Fprintf(&b, ", trade=%s", t.Trade)
	}
	b.WriteString("}")
	return b.String()
}

// =============================================================================
// GENERATOR - Assigns ids and timestamps
// =============================================================================

// Generator stamps new transactions. The zero value uses random v4 ids and
// the wall clock.
type Generator struct {
	NewID func() uuid.UUID
	Now   func() time.Time
}

// New starts a transaction with a fresh id and the current time.
func (g Generator) New(op Operation, operator Operator) *Transaction {
	newID, now := g.NewID, g.Now
	if newID == nil {
		newID = uuid.New
	}
	if now == nil {
		now = time.Now
	}
	return &Transaction{ID: newID(), Time: now(), Operation: op, Operator: operator}
}

// New is Generator{}.New.
func New(op Operation, operator Operator) *Transaction {
	return Generator{}.New(op, operator)
}
