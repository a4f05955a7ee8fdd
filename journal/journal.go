/*
Package journal keeps the audit trail of machine-mediated transactions.

PURPOSE:
  For every transaction that went through a machine, SaveTransaction writes
  three things in order:

    1. one line appended to logs/machine/<machineId>.log
    2. one immutable record logs/transactions/<yyyy.MM.dd-HH>/<id>.properties
    3. the machine's record: snapshot refreshed, counter +1, last id set

  Transactions without a machine are not journaled. A failure in any step
  fails the call with a record.DataError wrapping the cause. Steps already
  done stay done.

ORDERING:
  The journal is told after the ledger committed the balance change. Its
  errors are the ledger's to log; they never undo a balance.

READING:
  LoadTransaction and Walk decode journaled records back into transactions.
  An optional Index (see store/sqlite) is fed after each successful save.

SEE ALSO:
  - txn/fields.go: the record layout of a transaction
  - machine/registry.go: step 3
*/
package journal

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/coin-ledger/machine"
	"github.com/warp/coin-ledger/record"
	"github.com/warp/coin-ledger/txn"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	TransactionsDir = "logs/transactions"
	bucketLayout    = "2006.01.02-15"
	headerLayout    = "2006/01/02 15:04:05 -0700"
	ext             = ".properties"
)

// Bucket is the hour directory a transaction made at t is stored under.
func Bucket(t time.Time) string {
	return t.Format(bucketLayout)
}

func TransactionPath(id uuid.UUID, at time.Time) string {
	return TransactionsDir + "/" + Bucket(at) + "/" + id.String() + ext
}

// =============================================================================
// JOURNAL
// =============================================================================

// Index receives every journaled transaction. It holds derived data only.
type Index interface {
	Put(ctx context.Context, tx *txn.Transaction) error
}

type Journal struct {
	store    record.Store
	registry *machine.Registry
	index    Index
	logger   *log.Logger
}

type Option func(*Journal)

func WithIndex(idx Index) Option {
	return func(j *Journal) { j.index = idx }
}

func WithLogger(logger *log.Logger) Option {
	return func(j *Journal) { j.logger = logger }
}

func New(store record.Store, registry *machine.Registry, opts ...Option) *Journal {
	j := &Journal{store: store, registry: registry, logger: log.Default()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SaveTransaction journals tx. It is a no-op for transactions without a
// machine.
func (j *Journal) SaveTransaction(ctx context.Context, tx *txn.Transaction) error {
	if tx == nil || tx.Machine == nil {
		return nil
	}
	m := tx.Machine

	logPath := machine.LogPath(m.MachineID())
	if err := j.store.AppendLine(ctx, logPath, LogLine(tx)); err != nil {
		return &record.DataError{Path: logPath, Err: err}
	}

	path := TransactionPath(tx.ID, tx.Time)
	header := "Transaction on " + tx.Time.Format(headerLayout)
	if err := j.store.Save(ctx, path, txn.EncodeTransaction(tx), header); err != nil {
		return &record.DataError{Path: path, Err: err}
	}

	if err := j.registry.RecordTransaction(ctx, m, tx.ID); err != nil {
		return &record.DataError{Path: machine.RecordPath(m.MachineID()), Err: err}
	}

	if j.index != nil {
		if err := j.index.Put(ctx, tx); err != nil {
			j.logger.Printf("journal: index transaction %s: %v", tx.ID, err)
		}
	}
	return nil
}

// LogLine renders the machine log line for tx. tx.Machine must be set.
func LogLine(tx *txn.Transaction) string {
	return machine.LogTimestamp(tx.Time) +
		"Transaction processed | TransactionID:" + tx.ID.String() +
		machine.Details(tx.Machine) +
		" | TransactionData: " + tx.String()
}

// =============================================================================
// READER
// =============================================================================

// LoadTransaction reads the transaction journaled with id at time at.
func (j *Journal) LoadTransaction(ctx context.Context, id uuid.UUID, at time.Time) (*txn.Transaction, bool, error) {
	return j.load(ctx, TransactionPath(id, at))
}

func (j *Journal) load(ctx context.Context, path string) (*txn.Transaction, bool, error) {
	rec, ok, err := j.store.Load(ctx, path)
	if err != nil || !ok {
		return nil, false, err
	}
	tx, err := txn.DecodeTransaction(rec)
	if err != nil {
		return nil, true, record.InPath(err, path)
	}
	return tx, true, nil
}

// Walk calls fn for every journaled transaction in bucket order. It stops at
// the first error.
func (j *Journal) Walk(ctx context.Context, fn func(*txn.Transaction) error) error {
	paths, err := j.store.List(ctx, TransactionsDir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if !strings.HasSuffix(path, ext) {
			continue
		}
		tx, ok, err := j.load(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(tx); err != nil {
			return err
		}
	}
	return nil
}
