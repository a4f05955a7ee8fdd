/*
Package sqlite provides a SQLite-backed query index over journaled transactions.

PURPOSE:
  The flat files under logs/transactions are the source of truth, but they
  can only be walked, not queried. The Index keeps one row per transaction
  and one row per coin source so "history of account X" and "history of
  machine Y" are single indexed queries. It can be dropped and rebuilt from
  the journal at any time.

INTERFACES IMPLEMENTED:
  journal.Index: Put, called after each successful journal save

KEY TABLES:
  transactions: one row per transaction, with the full field set as JSON
  sources:      one row per (transaction, side), carrying account/machine ids
                and the before/after balances of that side

INDEXES:
  - idx_transactions_machine_time: machine history (hot path for the CLI)
  - idx_sources_account: account history

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection.

USAGE:
  idx, err := sqlite.New("./data/index.db")
  if err != nil {
      log.Fatal(err)
  }
  defer idx.Close()

  j := journal.New(store, registry, journal.WithIndex(idx))

SEE ALSO:
  - journal/journal.go: the Index interface and Walk
  - txn/fields.go: the field set stored in fields_json
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/coin-ledger/record"
	"github.com/warp/coin-ledger/txn"
)

// Index is a rebuildable SQLite index of journaled transactions.
type Index struct {
	db *sql.DB
	mu sync.RWMutex
}

// Walker replays journaled transactions; *journal.Journal implements it.
type Walker interface {
	Walk(ctx context.Context, fn func(*txn.Transaction) error) error
}

// Entry is one indexed transaction. The Side, Account and balance fields are
// set only by ByAccount.
type Entry struct {
	ID         uuid.UUID
	Time       time.Time
	Operation  txn.Operation
	MachineID  string
	Quantity   int
	Price      int32
	TotalPrice int32
	Infinite   bool

	Side          string
	Account       string
	BalanceBefore int32
	BalanceAfter  int32
}

// New opens (creating if needed) the index at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return idx, nil
}

// Close closes the database connection.
func (s *Index) Close() error {
	return s.db.Close()
}

func (s *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		time_ms INTEGER NOT NULL,
		operation TEXT NOT NULL,
		machine_id TEXT,
		operator_kind TEXT,
		quantity INTEGER NOT NULL DEFAULT 0,
		price INTEGER NOT NULL DEFAULT 0,
		price_total INTEGER NOT NULL DEFAULT 0,
		infinite BOOLEAN NOT NULL DEFAULT FALSE,
		fields_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_machine_time
		ON transactions(machine_id, time_ms DESC) WHERE machine_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS sources (
		tx_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		side TEXT NOT NULL,
		kind TEXT NOT NULL,
		account_number TEXT,
		machine_id TEXT,
		balance_before INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		PRIMARY KEY (tx_id, side)
	);

	CREATE INDEX IF NOT EXISTS idx_sources_account
		ON sources(account_number) WHERE account_number IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Put indexes tx, replacing any earlier entry with the same id.
func (s *Index) Put(ctx context.Context, tx *txn.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.putTx(ctx, sqlTx, tx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Index) putTx(ctx context.Context, db execer, tx *txn.Transaction) error {
	fieldsJSON, err := json.Marshal(txn.EncodeTransaction(tx))
	if err != nil {
		return fmt.Errorf("failed to encode transaction %s: %w", tx.ID, err)
	}

	var machineID sql.NullString
	if tx.Machine != nil {
		machineID = sql.NullString{String: tx.Machine.MachineID(), Valid: true}
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM sources WHERE tx_id = ?`, tx.ID.String()); err != nil {
		return fmt.Errorf("failed to clear sources: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO transactions
		(id, time_ms, operation, machine_id, operator_kind, quantity, price, price_total, infinite, fields_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		tx.ID.String(),
		tx.Time.UnixMilli(),
		string(tx.Operation),
		machineID,
		nullString(string(tx.Operator.Kind)),
		tx.Quantity,
		tx.Price,
		tx.TotalPrice,
		tx.Infinite,
		string(fieldsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to index transaction: %w", err)
	}

	for side, src := range map[string]*txn.CoinSource{"user": tx.UserSource, "owner": tx.OwnerSource} {
		if src == nil {
			continue
		}
		if err := s.putSource(ctx, db, tx.ID, side, src); err != nil {
			return err
		}
	}
	return nil
}

func (s *Index) putSource(ctx context.Context, db execer, id uuid.UUID, side string, src *txn.CoinSource) error {
	var account, machineID sql.NullString
	switch src.Kind {
	case txn.SourceCard:
		account = nullString(src.Account.Number)
	case txn.SourceMachine:
		machineID = nullString(src.MachineID)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO sources (tx_id, side, kind, account_number, machine_id, balance_before, balance_after)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.String(), side, string(src.Kind), account, machineID, src.BalanceBefore, src.BalanceAfter)
	if err != nil {
		return fmt.Errorf("failed to index %s source: %w", side, err)
	}
	return nil
}

// Rebuild empties the index and refills it from w.
func (s *Index) Rebuild(ctx context.Context, w Walker) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range []string{"sources", "transactions"} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	n := 0
	err = w.Walk(ctx, func(tx *txn.Transaction) error {
		n++
		return s.putTx(ctx, sqlTx, tx)
	})
	if err != nil {
		return 0, err
	}
	if err := sqlTx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// =============================================================================
// READS
// =============================================================================

// Count returns the number of indexed transactions.
func (s *Index) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count)
	return count, err
}

// ByMachine returns the newest transactions mediated by machine id.
func (s *Index) ByMachine(ctx context.Context, id string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, time_ms, operation, machine_id, quantity, price, price_total, infinite,
		       '', '', 0, 0
		FROM transactions
		WHERE machine_id = ?
		ORDER BY time_ms DESC, id ASC
		LIMIT ?
	`
	return s.queryEntries(ctx, query, id, normalizeLimit(limit))
}

// ByAccount returns the newest transactions that moved coins of account
// number, one entry per side the account appeared on.
func (s *Index) ByAccount(ctx context.Context, number string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT t.id, t.time_ms, t.operation, t.machine_id, t.quantity, t.price, t.price_total, t.infinite,
		       s.side, s.account_number, s.balance_before, s.balance_after
		FROM sources s
		JOIN transactions t ON t.id = s.tx_id
		WHERE s.account_number = ?
		ORDER BY t.time_ms DESC, t.id ASC, s.side ASC
		LIMIT ?
	`
	return s.queryEntries(ctx, query, number, normalizeLimit(limit))
}

// Transaction rebuilds the full transaction stored under id.
func (s *Index) Transaction(ctx context.Context, id uuid.UUID) (*txn.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fieldsJSON string
	err := s.db.QueryRowContext(ctx, "SELECT fields_json FROM transactions WHERE id = ?", id.String()).Scan(&fieldsJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query transaction: %w", err)
	}

	var rec record.Record
	if err := json.Unmarshal([]byte(fieldsJSON), &rec); err != nil {
		return nil, true, fmt.Errorf("failed to decode transaction %s: %w", id, err)
	}
	tx, err := txn.DecodeTransaction(rec)
	if err != nil {
		return nil, true, err
	}
	return tx, true, nil
}

func (s *Index) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			id        string
			timeMS    int64
			operation string
			machineID sql.NullString
		)
		if err := rows.Scan(&id, &timeMS, &operation, &machineID, &e.Quantity, &e.Price, &e.TotalPrice, &e.Infinite,
			&e.Side, &e.Account, &e.BalanceBefore, &e.BalanceAfter); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse transaction id %q: %w", id, err)
		}
		e.Time = time.UnixMilli(timeMS)
		e.Operation = txn.Operation(operation)
		e.MachineID = machineID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
