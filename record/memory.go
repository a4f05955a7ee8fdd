package record

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// ErrInjected is the cause used by Memory for writes made to fail with FailOn.
var ErrInjected = errors.New("injected write failure")

// Memory is a Store kept in maps. It counts writes and can be told to fail
// writes below a path prefix, which is what tests use to observe the
// "no write happened" and "second write failed" cases.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	headers map[string]string
	lines   map[string][]string
	writes  int
	failing []string
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]Record),
		headers: make(map[string]string),
		lines:   make(map[string][]string),
	}
}

func (m *Memory) Load(ctx context.Context, path string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, &StoreError{Op: "load", Path: path, Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[path]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *Memory) Save(ctx context.Context, path string, rec Record, header string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "save", Path: path, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failsLocked(path) {
		return &StoreError{Op: "save", Path: path, Err: ErrInjected}
	}
	m.records[path] = rec.Clone()
	m.headers[path] = header
	m.writes++
	return nil
}

func (m *Memory) AppendLine(ctx context.Context, path string, line string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "append", Path: path, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failsLocked(path) {
		return &StoreError{Op: "append", Path: path, Err: ErrInjected}
	}
	m.lines[path] = append(m.lines[path], strings.TrimSuffix(line, "\n"))
	m.writes++
	return nil
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, rec := m.records[path]
	_, log := m.lines[path]
	return rec || log, nil
}

func (m *Memory) List(_ context.Context, dir string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []string
	for p := range m.records {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	for p := range m.lines {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// =============================================================================
// TEST HOOKS
// =============================================================================

// Writes returns how many Save and AppendLine calls succeeded.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Header returns the comment line of the last save at path.
func (m *Memory) Header(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.headers[path]
}

// Lines returns the lines appended to path.
func (m *Memory) Lines(path string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.lines[path]...)
}

// FailOn makes every later write below prefix fail with ErrInjected.
func (m *Memory) FailOn(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = append(m.failing, prefix)
}

// Heal clears all FailOn prefixes.
func (m *Memory) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = nil
}

func (m *Memory) failsLocked(path string) bool {
	for _, p := range m.failing {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
