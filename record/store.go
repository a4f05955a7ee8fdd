/*
Package record provides durable storage of flat key-value text records.

PURPOSE:
  Every piece of ledger state (accounts, players, machines, journaled
  transactions) is a small set of string key-value pairs kept in its own
  human-readable file. This package maps a relative path to such a set and
  knows nothing about what the keys mean.

FORMAT:
  UTF-8 ".properties" text, one key=value per line, keys in lexicographic
  order, one leading "#" comment line carrying a human note:

    #Took 50 from balance
    balance=950
    number=123.456.789-01
    owner.id=8d0c...
    version=-2147483646

  Values are always stored as strings. Booleans, integers and timestamps are
  stringified by the Record helpers below.

KEY INTERFACES:
  Store:     Load/Save records, append plaintext log lines, list records
  FileStore: Store backed by a base directory (production)
  Memory:    Store backed by maps (tests)

ABSENT VS BROKEN:
  Load returns ok=false with a nil error when the record does not exist.
  Only I/O and parse failures are errors (StoreError). Synthesizing default
  values for a missing record is the caller's job.

SEE ALSO:
  - file.go: FileStore and the atomic write
  - memory.go: in-memory Store for tests
  - errors.go: StoreError, DataError
*/
package record

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// =============================================================================
// STORE - Interface for record persistence
// =============================================================================

// Store persists records addressed by slash-separated relative paths
// (e.g. "accounts/123.456.789-01.properties").
type Store interface {
	// Load reads the record at path. ok is false when it does not exist.
	Load(ctx context.Context, path string) (rec Record, ok bool, err error)

	// Save replaces the record at path. Keys are written in sorted order and
	// header becomes the leading comment line. A failed Save leaves the
	// previous content in place.
	Save(ctx context.Context, path string, rec Record, header string) error

	// AppendLine appends one line of plaintext to the file at path.
	AppendLine(ctx context.Context, path string, line string) error

	// Exists reports whether a record or log file exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the sorted paths of all files below dir.
	List(ctx context.Context, dir string) ([]string, error)
}

// =============================================================================
// RECORD - Ordered set of string fields
// =============================================================================

// Record is a set of string fields. Order only matters on save, where keys
// are always sorted.
type Record map[string]string

// Keys returns the record keys in lexicographic order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy that shares nothing with r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Get returns the value of key or def when missing.
func (r Record) Get(key, def string) string {
	if v, ok := r[key]; ok {
		return v
	}
	return def
}

func (r Record) Set(key, value string) { r[key] = value }

func (r Record) SetInt(key string, v int64) { r[key] = strconv.FormatInt(v, 10) }

func (r Record) SetBool(key string, v bool) { r[key] = strconv.FormatBool(v) }

func (r Record) SetUUID(key string, v uuid.UUID) { r[key] = v.String() }

// Int32 parses key as a 32-bit integer. A missing key yields def.
func (r Record) Int32(key string, def int32) (int32, error) {
	v, ok := r[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return def, &DataError{Key: key, Value: v, Err: err}
	}
	return int32(n), nil
}

// Int64 parses key as a 64-bit integer. A missing key yields def.
func (r Record) Int64(key string, def int64) (int64, error) {
	v, ok := r[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, &DataError{Key: key, Value: v, Err: err}
	}
	return n, nil
}

// Int parses key as a platform int bounded to the 32-bit range.
func (r Record) Int(key string, def int) (int, error) {
	n, err := r.Int64(key, int64(def))
	if err != nil {
		return def, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return def, &DataError{Key: key, Value: r[key], Err: strconv.ErrRange}
	}
	return int(n), nil
}

// Bool parses key as a boolean. A missing key yields def.
func (r Record) Bool(key string, def bool) (bool, error) {
	v, ok := r[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, &DataError{Key: key, Value: v, Err: err}
	}
	return b, nil
}

// UUID parses key as a UUID. ok is false when the key is missing.
func (r Record) UUID(key string) (id uuid.UUID, ok bool, err error) {
	v, present := r[key]
	if !present {
		return uuid.Nil, false, nil
	}
	id, err = uuid.Parse(v)
	if err != nil {
		return uuid.Nil, true, &DataError{Key: key, Value: v, Err: err}
	}
	return id, true, nil
}

// RequireUUID is UUID for mandatory fields: a missing key is a DataError.
func (r Record) RequireUUID(key string) (uuid.UUID, error) {
	id, ok, err := r.UUID(key)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, &DataError{Key: key, Err: ErrMissingField}
	}
	return id, nil
}
