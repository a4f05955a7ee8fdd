package txn

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/warp/coin-ledger/coins"
	"github.com/warp/coin-ledger/record"
)

// =============================================================================
// FIELD MAPPING - Transaction <-> flat record fields
// =============================================================================
//
// Every value object is written under a caller-chosen key prefix P:
//
//	CoinSource machine:   P.type=machine, P.machine.id
//	CoinSource card:      P.type=card, P.account.{number,owner,name}, P.card.*?
//	CoinSource inventory: P.type=inventory, P.holder.* (an Operator)
//	  every CoinSource:   P.balance.before, P.balance.after
//	Operator player:      P.type=player, P.player
//	Operator block:       P.type=block, P.owner?, P.block.{x,y,z,dim,meta,id}
//	Operator machine:     P.type=machine, P.machine.id, plus the block fields
//	Machine reference:    P.id, P.owner?, P.tile.{dim,x,y,z,block,block.meta}
//	Item stack:           P (rendering), P.type, P.meta, P.amount, P.tags?
//
// A transaction record uses the prefixes coins.user, coins.owner, operator,
// machine, product and trade.

const (
	userPrefix     = "coins.user"
	ownerPrefix    = "coins.owner"
	operatorPrefix = "operator"
	machinePrefix  = "machine"
	productPrefix  = "product"
	tradePrefix    = "trade"
)

// ErrUnknownKind is the cause of a DataError for an unrecognized type tag.
var ErrUnknownKind = errors.New("unknown type tag")

// EncodeTransaction flattens t into a new record.
func EncodeTransaction(t *Transaction) record.Record {
	rec := record.Record{}
	rec.SetUUID("id", t.ID)
	rec.SetInt("time", t.Time.UnixMilli())
	rec.Set("operation", string(t.Operation))
	rec.SetBool("infinite", t.Infinite)
	rec.SetInt("quantity", int64(t.Quantity))
	rec.SetInt("price", int64(t.Price))
	rec.SetInt("price.total", int64(t.TotalPrice))

	EncodeSource(rec, userPrefix, t.UserSource)
	EncodeSource(rec, ownerPrefix, t.OwnerSource)
	EncodeOperator(rec, operatorPrefix, t.Operator)
	if t.Machine != nil {
		EncodeMachineRef(rec, machinePrefix, t.Machine)
	}
	EncodeStack(rec, productPrefix, t.Product)
	EncodeStack(rec, tradePrefix, t.Trade)
	return rec
}

// DecodeTransaction rebuilds a transaction written by EncodeTransaction. The
// machine, if any, comes back as a MachineRef.
func DecodeTransaction(rec record.Record) (*Transaction, error) {
	id, err := rec.RequireUUID("id")
	if err != nil {
		return nil, err
	}
	if !rec.Has("time") {
		return nil, &record.DataError{Key: "time", Err: record.ErrMissingField}
	}
	ms, err := rec.Int64("time", 0)
	if err != nil {
		return nil, err
	}
	t := &Transaction{
		ID:        id,
		Time:      time.UnixMilli(ms),
		Operation: Operation(rec.Get("operation", "")),
	}
	if t.Infinite, err = rec.Bool("infinite", false); err != nil {
		return nil, err
	}
	if t.Quantity, err = rec.Int("quantity", 0); err != nil {
		return nil, err
	}
	if t.Price, err = rec.Int32("price", 0); err != nil {
		return nil, err
	}
	if t.TotalPrice, err = rec.Int32("price.total", 0); err != nil {
		return nil, err
	}
	if t.UserSource, err = DecodeSource(rec, userPrefix); err != nil {
		return nil, err
	}
	if t.OwnerSource, err = DecodeSource(rec, ownerPrefix); err != nil {
		return nil, err
	}
	if t.Operator, err = DecodeOperator(rec, operatorPrefix); err != nil {
		return nil, err
	}
	ref, ok, err := DecodeMachineRef(rec, machinePrefix)
	if err != nil {
		return nil, err
	}
	if ok {
		t.Machine = ref
	}
	if t.Product, err = DecodeStack(rec, productPrefix); err != nil {
		return nil, err
	}
	if t.Trade, err = DecodeStack(rec, tradePrefix); err != nil {
		return nil, err
	}
	return t, nil
}

// =============================================================================
// COIN SOURCES
// =============================================================================

// EncodeSource writes s under prefix. A nil source writes nothing.
func EncodeSource(rec record.Record, prefix string, s *CoinSource) {
	if s == nil {
		return
	}
	p := prefix + "."
	switch s.Kind {
	case SourceMachine:
		rec.Set(p+"machine.id", s.MachineID)
	case SourceCard:
		rec.Set(p+"account.number", s.Account.Number)
		rec.SetUUID(p+"account.owner", s.Account.Owner)
		rec.Set(p+"account.name", s.Account.Name)
		EncodeStack(rec, p+"card", s.Card)
	case SourceInventory:
		EncodeOperator(rec, p+"holder", s.Holder)
	}
	rec.Set(p+"type", string(s.Kind))
	rec.SetInt(p+"balance.before", int64(s.BalanceBefore))
	rec.SetInt(p+"balance.after", int64(s.BalanceAfter))
}

// DecodeSource reads the source under prefix, or nil when none was written.
func DecodeSource(rec record.Record, prefix string) (*CoinSource, error) {
	p := prefix + "."
	kind, ok := rec[p+"type"]
	if !ok {
		return nil, nil
	}
	s := &CoinSource{Kind: SourceKind(kind)}
	var err error
	switch s.Kind {
	case SourceMachine:
		s.MachineID = rec.Get(p+"machine.id", "")
	case SourceCard:
		s.Account.Number = rec.Get(p+"account.number", "")
		s.Account.Name = rec.Get(p+"account.name", "")
		if s.Account.Owner, err = rec.RequireUUID(p + "account.owner"); err != nil {
			return nil, err
		}
		if s.Card, err = DecodeStack(rec, p+"card"); err != nil {
			return nil, err
		}
	case SourceInventory:
		if s.Holder, err = DecodeOperator(rec, p+"holder"); err != nil {
			return nil, err
		}
	default:
		return nil, &record.DataError{Key: p + "type", Value: kind, Err: ErrUnknownKind}
	}
	if s.BalanceBefore, err = rec.Int32(p+"balance.before", 0); err != nil {
		return nil, err
	}
	if s.BalanceAfter, err = rec.Int32(p+"balance.after", 0); err != nil {
		return nil, err
	}
	return s, nil
}

// =============================================================================
// OPERATORS
// =============================================================================

// EncodeOperator writes op under prefix. The zero Operator writes nothing.
func EncodeOperator(rec record.Record, prefix string, op Operator) {
	if op.IsZero() {
		return
	}
	p := prefix + "."
	rec.Set(p+"type", string(op.Kind))
	switch op.Kind {
	case OperatorPlayer:
		rec.SetUUID(p+"player", op.Player)
	case OperatorMachine:
		rec.Set(p+"machine.id", op.MachineID)
		encodeBlock(rec, p, op.Block)
	case OperatorBlock:
		encodeBlock(rec, p, op.Block)
	}
}

func encodeBlock(rec record.Record, p string, b Block) {
	if b.Owner != uuid.Nil {
		rec.SetUUID(p+"owner", b.Owner)
	}
	rec.SetInt(p+"block.x", int64(b.X))
	rec.SetInt(p+"block.y", int64(b.Y))
	rec.SetInt(p+"block.z", int64(b.Z))
	rec.SetInt(p+"block.dim", int64(b.Dimension))
	rec.SetInt(p+"block.meta", int64(b.BlockMeta))
	rec.Set(p+"block.id", b.BlockID)
}

// DecodeOperator reads the operator under prefix. A missing type tag yields
// the zero Operator.
func DecodeOperator(rec record.Record, prefix string) (Operator, error) {
	p := prefix + "."
	kind, ok := rec[p+"type"]
	if !ok {
		return Operator{}, nil
	}
	op := Operator{Kind: OperatorKind(kind)}
	var err error
	switch op.Kind {
	case OperatorPlayer:
		op.Player, err = rec.RequireUUID(p + "player")
	case OperatorMachine:
		op.MachineID = rec.Get(p+"machine.id", "")
		op.Block, err = decodeBlock(rec, p)
	case OperatorBlock:
		op.Block, err = decodeBlock(rec, p)
	default:
		err = &record.DataError{Key: p + "type", Value: kind, Err: ErrUnknownKind}
	}
	if err != nil {
		return Operator{}, err
	}
	return op, nil
}

func decodeBlock(rec record.Record, p string) (Block, error) {
	var b Block
	var err error
	if b.Owner, _, err = rec.UUID(p + "owner"); err != nil {
		return b, err
	}
	if b.X, err = rec.Int(p+"block.x", 0); err != nil {
		return b, err
	}
	if b.Y, err = rec.Int(p+"block.y", 0); err != nil {
		return b, err
	}
	if b.Z, err = rec.Int(p+"block.z", 0); err != nil {
		return b, err
	}
	if b.Dimension, err = rec.Int(p+"block.dim", 0); err != nil {
		return b, err
	}
	if b.BlockMeta, err = rec.Int(p+"block.meta", 0); err != nil {
		return b, err
	}
	b.BlockID = rec.Get(p+"block.id", "")
	return b, nil
}

// =============================================================================
// MACHINE REFERENCES
// =============================================================================

// EncodeMachineRef writes the identity and location of m under prefix.
func EncodeMachineRef(rec record.Record, prefix string, m Machine) {
	p := prefix + "."
	rec.Set(p+"id", m.MachineID())
	if owner := m.OwnerID(); owner != uuid.Nil {
		rec.SetUUID(p+"owner", owner)
	}
	if loc := m.Location(); loc != nil {
		rec.SetInt(p+"tile.dim", int64(loc.Dimension))
		rec.SetInt(p+"tile.x", int64(loc.X))
		rec.SetInt(p+"tile.y", int64(loc.Y))
		rec.SetInt(p+"tile.z", int64(loc.Z))
		rec.Set(p+"tile.block", loc.Block)
		rec.SetInt(p+"tile.block.meta", int64(loc.BlockMeta))
	}
}

// DecodeMachineRef reads a machine reference. ok is false when prefix.id is
// absent.
func DecodeMachineRef(rec record.Record, prefix string) (ref MachineRef, ok bool, err error) {
	p := prefix + "."
	id, ok := rec[p+"id"]
	if !ok {
		return MachineRef{}, false, nil
	}
	ref.ID = id
	if ref.Owner, _, err = rec.UUID(p + "owner"); err != nil {
		return MachineRef{}, true, err
	}
	if !rec.Has(p + "tile.x") {
		return ref, true, nil
	}
	loc := &Location{Block: rec.Get(p+"tile.block", "")}
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"tile.dim", &loc.Dimension},
		{"tile.x", &loc.X},
		{"tile.y", &loc.Y},
		{"tile.z", &loc.Z},
		{"tile.block.meta", &loc.BlockMeta},
	} {
		if *f.dst, err = rec.Int(p+f.key, 0); err != nil {
			return MachineRef{}, true, err
		}
	}
	ref.Loc = loc
	return ref, true, nil
}

// =============================================================================
// ITEM STACKS
// =============================================================================

// EncodeStack writes s under prefix. A nil stack writes nothing.
func EncodeStack(rec record.Record, prefix string, s *coins.Stack) {
	if s == nil {
		return
	}
	rec.Set(prefix, s.String())
	rec.Set(prefix+".type", s.Item)
	rec.SetInt(prefix+".meta", int64(s.Meta))
	rec.SetInt(prefix+".amount", int64(s.Amount))
	if s.Tags != "" {
		rec.Set(prefix+".tags", s.Tags)
	}
}

// DecodeStack reads the stack under prefix, or nil when none was written.
// The rendering under the bare prefix is informational and ignored.
func DecodeStack(rec record.Record, prefix string) (*coins.Stack, error) {
	item, ok := rec[prefix+".type"]
	if !ok {
		return nil, nil
	}
	s := &coins.Stack{Item: item, Tags: rec.Get(prefix+".tags", "")}
	var err error
	if s.Meta, err = rec.Int(prefix+".meta", 0); err != nil {
		return nil, err
	}
	if s.Amount, err = rec.Int(prefix+".amount", 0); err != nil {
		return nil, err
	}
	return s, nil
}
