/*
Package machine persists the state of economic machines and formats their
plaintext log lines.

PURPOSE:
  A MachineRecord is the durable view of one machine: identity, owner,
  location, creation time, how many transactions it mediated, the last of
  them, and an opaque snapshot of machine-specific fields. The registry
  refreshes the snapshot from the live machine on every save, so the file
  always shows the machine as of its latest transaction.

FILES:
  machines/<id>.properties   MachineRecord (Registry)
  logs/machine/<id>.log      plaintext audit lines (Registry, journal)

SEE ALSO:
  - vendor.go: Vendor, a txn.Machine with coin tallies
  - journal/journal.go: calls RecordTransaction after each transaction
*/
package machine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/coin-ledger/record"
	"github.com/warp/coin-ledger/txn"
)

// =============================================================================
// PATHS AND FORMATS
// =============================================================================

func RecordPath(id string) string { return "machines/" + id + ".properties" }

func LogPath(id string) string { return "logs/machine/" + id + ".log" }

const logTimeLayout = "2006/01/02 15:04:05 -0700: "

// LogTimestamp renders t as the prefix of a machine log line.
func LogTimestamp(t time.Time) string {
	return t.Format(logTimeLayout)
}

// Details renders the owner and location part of a machine log line.
func Details(m txn.Machine) string {
	var b strings.Builder
	b.WriteString(" | PlayerOwner: ")
	if owner := m.OwnerID(); owner != uuid.Nil {
		b.WriteString(owner.String())
	} else {
		b.WriteString("none")
	}
	if loc := m.Location(); loc != nil {
		fmt.Fprintf(&b, " | DIM:%d | X:%d | Y:%d | Z:%d | Block:%s | BlockMeta:%d",
			loc.Dimension, loc.X, loc.Y, loc.Z, loc.Block, loc.BlockMeta)
	}
	return b.String()
}

// =============================================================================
// MACHINE RECORD
// =============================================================================

const (
	keyCreation     = "creation"
	keyTransactions = "transactions"
	keyLast         = "transaction.last"
	refPrefix       = "machine"
)

// Record is the stored state of one machine.
type Record struct {
	ID              string
	Owner           uuid.UUID
	Location        *txn.Location
	Created         time.Time
	Transactions    int64
	LastTransaction uuid.UUID // uuid.Nil before the first transaction
	State           map[string]string
}

func (r Record) encode() record.Record {
	rec := record.Record{}
	for k, v := range r.State {
		rec.Set(k, v)
	}
	txn.EncodeMachineRef(rec, refPrefix, r.ref())
	rec.SetInt(keyCreation, r.Created.UnixMilli())
	rec.SetInt(keyTransactions, r.Transactions)
	if r.LastTransaction != uuid.Nil {
		rec.SetUUID(keyLast, r.LastTransaction)
	}
	return rec
}

func (r Record) ref() txn.MachineRef {
	return txn.MachineRef{ID: r.ID, Owner: r.Owner, Loc: r.Location}
}

func decodeRecord(id string, rec record.Record) (Record, error) {
	ref, ok, err := txn.DecodeMachineRef(rec, refPrefix)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		ref.ID = id
	}
	r := Record{ID: ref.ID, Owner: ref.Owner, Location: ref.Loc, State: map[string]string{}}

	ms, err := rec.Int64(keyCreation, 0)
	if err != nil {
		return Record{}, err
	}
	r.Created = time.UnixMilli(ms)
	if r.Transactions, err = rec.Int64(keyTransactions, 0); err != nil {
		return Record{}, err
	}
	if r.Transactions < 0 {
		return Record{}, &record.DataError{Key: keyTransactions, Value: rec[keyTransactions], Err: errNegativeCounter}
	}
	if r.LastTransaction, _, err = rec.UUID(keyLast); err != nil {
		return Record{}, err
	}

	for k, v := range rec {
		switch {
		case k == keyCreation, k == keyTransactions, k == keyLast:
		case strings.HasPrefix(k, refPrefix+"."):
		default:
			r.State[k] = v
		}
	}
	return r, nil
}

var errNegativeCounter = errors.New("transaction counter is negative")

// =============================================================================
// REGISTRY
// =============================================================================

type Registry struct {
	store record.Store
	now   func() time.Time
}

type Option func(*Registry)

// WithClock sets the clock used for creation times and log lines.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(store record.Store, opts ...Option) *Registry {
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns the stored record of machine id. ok is false when none exists.
func (r *Registry) Load(ctx context.Context, id string) (Record, bool, error) {
	path := RecordPath(id)
	rec, ok, err := r.store.Load(ctx, path)
	if err != nil || !ok {
		return Record{}, false, err
	}
	mr, err := decodeRecord(id, rec)
	if err != nil {
		return Record{}, true, record.InPath(err, path)
	}
	return mr, true, nil
}

// SaveMachine stores the current state of m, creating its record if needed.
func (r *Registry) SaveMachine(ctx context.Context, m txn.Machine) error {
	return r.update(ctx, m, nil)
}

// SaveNewMachine logs the creation of m, then saves it.
func (r *Registry) SaveNewMachine(ctx context.Context, m txn.Machine) error {
	line := LogTimestamp(r.now()) + "Machine created | MachineID:" + m.MachineID() + Details(m)
	if err := r.store.AppendLine(ctx, LogPath(m.MachineID()), line); err != nil {
		return err
	}
	return r.SaveMachine(ctx, m)
}

// RecordTransaction counts one more transaction on m and points the record
// at txID.
func (r *Registry) RecordTransaction(ctx context.Context, m txn.Machine, txID uuid.UUID) error {
	return r.update(ctx, m, func(mr *Record) {
		mr.Transactions++
		mr.LastTransaction = txID
	})
}

func (r *Registry) update(ctx context.Context, m txn.Machine, mutate func(*Record)) error {
	mr, ok, err := r.Load(ctx, m.MachineID())
	if err != nil {
		return err
	}
	if !ok {
		mr = Record{ID: m.MachineID(), Created: r.now()}
	}
	mr.Owner = m.OwnerID()
	mr.Location = m.Location()
	mr.State = snapshot(m)
	if mutate != nil {
		mutate(&mr)
	}
	return r.store.Save(ctx, RecordPath(mr.ID), mr.encode(), "")
}

func snapshot(m txn.Machine) map[string]string {
	out := map[string]string{}
	for k, v := range m.Snapshot() {
		if k == keyCreation || k == keyTransactions || k == keyLast || strings.HasPrefix(k, refPrefix+".") {
			continue
		}
		out[k] = v
	}
	return out
}
