package record

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStore is returned when a record file cannot be read, parsed or written.
	ErrStore = errors.New("record: store failure")

	// ErrData is returned when a present record holds a malformed or missing
	// required field.
	ErrData = errors.New("record: malformed data")

	// ErrMissingField is the cause of a DataError for an absent required key.
	ErrMissingField = errors.New("missing required field")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StoreError is an I/O or parse failure on a record file.
type StoreError struct {
	Op   string // "load", "save", "append", "list"
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// DataError is a malformed or missing field in an otherwise readable record.
type DataError struct {
	Path  string
	Key   string
	Value string
	Err   error
}

func (e *DataError) Error() string {
	switch {
	case e.Key == "":
		return fmt.Sprintf("record: bad data in %s: %v", e.Path, e.Err)
	case e.Path == "":
		return fmt.Sprintf("record: bad field %s=%q: %v", e.Key, e.Value, e.Err)
	default:
		return fmt.Sprintf("record: bad field %s=%q in %s: %v", e.Key, e.Value, e.Path, e.Err)
	}
}

func (e *DataError) Unwrap() []error {
	return []error{ErrData, e.Err}
}

// InPath attaches path to err when err is a DataError without one.
// Any other error is returned unchanged.
func InPath(err error, path string) error {
	var de *DataError
	if errors.As(err, &de) && de.Path == "" {
		cp := *de
		cp.Path = path
		return &cp
	}
	return err
}
