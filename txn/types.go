/*
Package txn describes who moved money, where it came from, and through what.

PURPOSE:
  A Transaction is the audit unit of the ledger. Besides amounts it carries
  three polymorphic descriptions, each a tagged value with an explicit Kind:

    Operator:   the actor responsible (a player, a block, a machine block)
    CoinSource: where one side's coins came from (a machine tally, an
                account/card, a holder's inventory), with before/after balances
    Machine:    the economic device that mediated the event, if any

  fields.go maps all of them to and from flat record fields; that mapping is
  the on-disk contract of the journal.

KEY INTERFACES:
  Machine: capability implemented by the host's devices (and by MachineRef,
           the read-back form of a journaled machine reference)

SEE ALSO:
  - transaction.go: Transaction, Operation, Generator
  - fields.go: canonical field mapping
  - machine/vendor.go: a Machine implementation
*/
package txn

import (
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// MACHINE - Capability consumed from the host
// =============================================================================

// Machine is an economic actor that mediates transactions.
type Machine interface {
	// MachineID is stable for the lifetime of the machine.
	MachineID() string

	// OwnerID is the owning player, or uuid.Nil for unowned machines.
	OwnerID() uuid.UUID

	// Location is where the machine sits, or nil when it is not placed.
	Location() *Location

	// Snapshot returns the machine-specific state to persist with its
	// record. Keys are owned by the machine type (e.g. "vendor.price").
	Snapshot() map[string]string
}

// Location is a world position plus the block found there.
type Location struct {
	Dimension int
	X, Y, Z   int
	Block     string
	BlockMeta int
}

func (l Location) String() string {
	return fmt.Sprintf("DIM:%d X:%d Y:%d Z:%d", l.Dimension, l.X, l.Y, l.Z)
}

// MachineRef is a Machine known only by its journaled reference fields. It
// has no live state, so Snapshot is empty.
type MachineRef struct {
	ID    string
	Owner uuid.UUID
	Loc   *Location
}

func (m MachineRef) MachineID() string          { return m.ID }
func (m MachineRef) OwnerID() uuid.UUID         { return m.Owner }
func (m MachineRef) Location() *Location        { return m.Loc }
func (m MachineRef) Snapshot() map[string]string { return nil }

// =============================================================================
// ACCOUNT ADDRESS
// =============================================================================

// AccountAddress names an account: its number, the display name the owner
// gave it, and the owner.
type AccountAddress struct {
	Number string
	Name   string
	Owner  uuid.UUID
}

func (a AccountAddress) String() string {
	return a.Number + ";" + a.Name
}

// =============================================================================
// OPERATOR - Who is responsible
// =============================================================================

type OperatorKind string

const (
	OperatorPlayer  OperatorKind = "player"
	OperatorBlock   OperatorKind = "block"
	OperatorMachine OperatorKind = "machine"
)

// Block identifies a block in the world and, optionally, its owner.
type Block struct {
	X, Y, Z   int
	Dimension int
	BlockID   string
	BlockMeta int
	Owner     uuid.UUID // uuid.Nil when unowned
}

// Operator is the actor responsible for a transaction. Kind selects which
// fields are meaningful:
//
//	OperatorPlayer:  Player
//	OperatorBlock:   Block
//	OperatorMachine: MachineID and Block
//
// The zero Operator means "unknown" and is not serialized.
type Operator struct {
	Kind      OperatorKind
	Player    uuid.UUID
	Block     Block
	MachineID string
}

func PlayerOperator(player uuid.UUID) Operator {
	return Operator{Kind: OperatorPlayer, Player: player}
}

func BlockOperator(b Block) Operator {
	return Operator{Kind: OperatorBlock, Block: b}
}

// MachineOperator builds the operator for a machine acting on its own,
// taking its block fields from the machine's location.
func MachineOperator(m Machine) Operator {
	op := Operator{Kind: OperatorMachine, MachineID: m.MachineID()}
	op.Block.Owner = m.OwnerID()
	if loc := m.Location(); loc != nil {
		op.Block.X, op.Block.Y, op.Block.Z = loc.X, loc.Y, loc.Z
		op.Block.Dimension = loc.Dimension
		op.Block.BlockID = loc.Block
		op.Block.BlockMeta = loc.BlockMeta
	}
	return op
}

func (o Operator) IsZero() bool { return o.Kind == "" }

func (o Operator) String() string {
	switch o.Kind {
	case OperatorPlayer:
		return "player:" + o.Player.String()
	case OperatorBlock:
		return fmt.Sprintf("block:%s@%d,%d,%d/%d", o.Block.BlockID, o.Block.X, o.Block.Y, o.Block.Z, o.Block.Dimension)
	case OperatorMachine:
		return fmt.Sprintf("machine:%s@%d,%d,%d/%d", o.MachineID, o.Block.X, o.Block.Y, o.Block.Z, o.Block.Dimension)
	}
	return "none"
}
