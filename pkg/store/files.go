package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend stores each document as a json file in a directory.
// Writes are atomic per document: temp file in the same directory, fsync, rename.
type FileBackend struct {
	dir string
}

// NewFileBackend makes a backend rooted at dir, the directory is created on first save
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

// Load reads the named document into v
func (f *FileBackend) Load(_ context.Context, name string, v any) error {
	data, err := os.ReadFile(f.path(name)) //nolint:gosec // path built from configured state dir
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w: %v", name, ErrCorrupt, err)
	}
	return nil
}

// Save writes all documents, each one replaced atomically
func (f *FileBackend) Save(ctx context.Context, docs ...Document) error {
	if err := os.MkdirAll(f.dir, 0o750); err != nil {
		return fmt.Errorf("make state dir %s: %w", f.dir, err)
	}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.MarshalIndent(d.Value, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", d.Name, err)
		}
		if err := writeAtomic(f.path(d.Name), data); err != nil {
			return fmt.Errorf("write %s: %w", d.Name, err)
		}
	}
	return nil
}

func (f *FileBackend) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

// writeAtomic writes data to a temp file next to path and renames it over path,
// a crash leaves either the old or the new file, never a partial one
func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o640); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
