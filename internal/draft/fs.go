package draft

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/checksum"
	"github.com/starford/contextpad/internal/models"
)

// FileName is the name of the draft file inside the draft directory.
const FileName = SlotKey + ".json"

// FS implements Store as one JSON file in a directory.
type FS struct {
	dir      string // absolute path to the draft directory
	maxBytes int64

	mu   sync.Mutex
	last string // checksum of the last content this process wrote or read
}

// NewFS creates a file-backed draft store in dir, creating the directory
// if needed. maxBytes <= 0 disables the quota.
func NewFS(dir string, maxBytes int64) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("draft: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("draft: mkdir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("draft: stat dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("draft: not a directory: %s", abs)
	}
	return &FS{dir: abs, maxBytes: maxBytes}, nil
}

// Path returns the absolute path of the draft file.
func (f *FS) Path() string {
	return filepath.Join(f.dir, FileName)
}

// Save atomically writes the draft: tmp file → fsync → rename.
func (f *FS) Save(_ context.Context, doc models.Document) error {
	data, err := encode(doc, f.maxBytes)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".contextpad-tmp-*")
	if err != nil {
		return fmt.Errorf("draft: create temp: %w: %v", apperr.ErrStorage, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("draft: write temp: %w: %v", apperr.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("draft: fsync: %w: %v", apperr.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("draft: close temp: %w: %v", apperr.ErrStorage, err)
	}
	// Recorded before the rename for the watcher; restored on failure.
	prev := f.remember(data)
	if err := os.Rename(tmpName, f.Path()); err != nil {
		f.restore(prev)
		return fmt.Errorf("draft: rename: %w: %v", apperr.ErrStorage, err)
	}
	success = true
	return nil
}

// Load reads and strictly decodes the draft file.
func (f *FS) Load(_ context.Context) (*models.Document, error) {
	data, err := os.ReadFile(f.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("draft: load: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("draft: read: %w: %v", apperr.ErrStorage, err)
	}
	f.remember(data)
	return decode(data)
}

// Clear removes the draft file.
func (f *FS) Clear(_ context.Context) error {
	err := os.Remove(f.Path())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("draft: clear: %w: %v", apperr.ErrStorage, err)
	}
	f.remember(nil)
	return nil
}

// remember records the checksum of data and returns the previous one.
func (f *FS) remember(data []byte) string {
	sum := ""
	if data != nil {
		sum = checksum.Sum(data)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := f.last
	f.last = sum
	return prev
}

func (f *FS) restore(sum string) {
	f.mu.Lock()
	f.last = sum
	f.mu.Unlock()
}

// changedExternally reports whether the file on disk differs from what this
// process last wrote or read.
func (f *FS) changedExternally() bool {
	data, err := os.ReadFile(f.Path())
	sum := ""
	if err == nil {
		sum = checksum.Sum(data)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return sum != f.last
}
