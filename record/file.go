package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magiconair/properties"
)

// =============================================================================
// FILE STORE - Records as .properties files under a base directory
// =============================================================================

// FileStore implements Store on the local filesystem. Paths are relative to
// the base directory and use forward slashes.
//
// There is no locking: the host is expected to serialize calls that touch the
// same path.
type FileStore struct {
	base string
}

// NewFileStore opens (creating if needed) a store rooted at base.
func NewFileStore(base string) (*FileStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, &StoreError{Op: "open", Path: base, Err: err}
	}
	return &FileStore{base: base}, nil
}

// Base returns the root directory of the store.
func (s *FileStore) Base() string { return s.base }

func (s *FileStore) resolve(p string) string {
	return filepath.Join(s.base, filepath.FromSlash(p))
}

// Load reads and parses the record at p.
func (s *FileStore) Load(ctx context.Context, p string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, &StoreError{Op: "load", Path: p, Err: err}
	}

	data, err := os.ReadFile(s.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StoreError{Op: "load", Path: p, Err: err}
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, false, &StoreError{Op: "load", Path: p, Err: err}
	}
	return rec, true, nil
}

// Save encodes rec and atomically replaces the file at p.
func (s *FileStore) Save(ctx context.Context, p string, rec Record, header string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "save", Path: p, Err: err}
	}

	data, err := Encode(rec, header)
	if err != nil {
		return &StoreError{Op: "save", Path: p, Err: err}
	}
	if err := writeAtomic(s.resolve(p), data); err != nil {
		return &StoreError{Op: "save", Path: p, Err: err}
	}
	return nil
}

// AppendLine opens the file at p in append mode and writes line.
func (s *FileStore) AppendLine(ctx context.Context, p string, line string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "append", Path: p, Err: err}
	}

	full := s.resolve(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &StoreError{Op: "append", Path: p, Err: err}
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &StoreError{Op: "append", Path: p, Err: err}
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return &StoreError{Op: "append", Path: p, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StoreError{Op: "append", Path: p, Err: err}
	}
	return nil
}

func (s *FileStore) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &StoreError{Op: "stat", Path: p, Err: err}
	}
	_, err := os.Stat(s.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Op: "stat", Path: p, Err: err}
	}
	return true, nil
}

// List walks dir and returns every regular file below it. A missing dir is
// an empty listing.
func (s *FileStore) List(ctx context.Context, dir string) ([]string, error) {
	root := s.resolve(dir)
	var out []string
	err := filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && full == root {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return err
		}
		out = append(out, path.Join(dir, filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, &StoreError{Op: "list", Path: dir, Err: err}
	}
	sort.Strings(out)
	return out, nil
}

// =============================================================================
// CODEC
// =============================================================================

// Encode renders rec as .properties text with sorted keys and a leading
// comment line.
func Encode(rec Record, header string) ([]byte, error) {
	p := properties.NewProperties()
	p.DisableExpansion = true
	p.WriteSeparator = "="
	for _, k := range rec.Keys() {
		if k == "" {
			return nil, errors.New("empty key")
		}
		if _, _, err := p.Set(k, rec[k]); err != nil {
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
	}
	p.Sort()

	var buf bytes.Buffer
	buf.WriteString("#")
	buf.WriteString(strings.NewReplacer("\r", " ", "\n", " ").Replace(header))
	buf.WriteString("\n")
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses .properties text. Comment lines are ignored and ${...}
// references are kept literally.
func Decode(data []byte) (Record, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes(data)
	if err != nil {
		return nil, err
	}
	return Record(p.Map()), nil
}

// writeAtomic writes data to a temp file next to full and renames it over
// full, so readers see either the old or the new content.
func writeAtomic(full string, data []byte) error {
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, full); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
