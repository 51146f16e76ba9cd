package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const fileExt = ".json"

// FileStorage implements Storage with one JSON file per session in a directory.
// Writes go through a temporary file and a rename, so readers never observe
// a partially written record.
type FileStorage struct {
	mu  sync.RWMutex
	dir string
}

var (
	_ Storage        = (*FileStorage)(nil)
	_ ExpiredCleaner = (*FileStorage)(nil)
)

// NewFileStorage creates the directory if needed and returns a storage rooted at it.
func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.Join(ErrStorage, fmt.Errorf("session directory is empty"))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Join(ErrStorage, fmt.Errorf("failed to create session directory: %w", err))
	}
	return &FileStorage{dir: dir}, nil
}

// Dir returns the storage directory.
func (f *FileStorage) Dir() string {
	return f.dir
}

// Get reads the record for id. Expired records are deleted and reported absent.
func (f *FileStorage) Get(ctx context.Context, id string) (Data, error) {
	path, err := f.path(id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}

	f.mu.RLock()
	rec, err := readRecord(path)
	f.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Join(ErrStorage, err)
	}

	now := time.Now()
	if !rec.IsExpired(now) {
		return rec.Data, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Re-read: the record may have been replaced since the first read.
	if cur, err := readRecord(path); err == nil && cur.IsExpired(now) {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Join(ErrStorage, fmt.Errorf("failed to evict expired session: %w", err))
		}
	}
	return nil, nil
}

// Set writes the record for id expiring ttl from now.
func (f *FileStorage) Set(ctx context.Context, id string, data Data, ttl time.Duration) error {
	path, err := f.path(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}

	b, err := json.Marshal(NewRecord(data, ttl))
	if err != nil {
		return errors.Join(ErrStorage, ErrSerialization, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return writeFileAtomic(f.dir, path, b)
}

// Remove deletes the file for id. A missing file is not an error.
func (f *FileStorage) Remove(ctx context.Context, id string) error {
	path, err := f.path(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrStorage, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(ErrStorage, fmt.Errorf("failed to delete session %s: %w", id, err))
	}
	return nil
}

// Reset deletes every session file in the directory.
func (f *FileStorage) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	names, err := f.list()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return errors.Join(ErrStorage, err)
		}
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Join(ErrStorage, fmt.Errorf("failed to delete %s: %w", name, err))
		}
	}
	return nil
}

// Close is a no-op: the filesystem holds no connection.
func (f *FileStorage) Close(context.Context) error {
	return nil
}

// DeleteExpired removes expired records. Unreadable files are left in place.
func (f *FileStorage) DeleteExpired(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names, err := f.list()
	if err != nil {
		return 0, err
	}

	now := time.Now()
	var removed int64
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return removed, errors.Join(ErrStorage, err)
		}
		path := filepath.Join(f.dir, name)
		rec, err := readRecord(path)
		if err != nil || !rec.IsExpired(now) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, errors.Join(ErrStorage, err)
		}
		removed++
	}
	return removed, nil
}

// path maps id to a file inside the directory, refusing ids that could escape it.
func (f *FileStorage) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`+"\x00") {
		return "", errors.Join(ErrStorage, ErrInvalidID)
	}
	return filepath.Join(f.dir, id+fileExt), nil
}

func (f *FileStorage) list() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Join(ErrStorage, fmt.Errorf("failed to list sessions: %w", err))
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == fileExt {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func readRecord(path string) (Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, errors.Join(ErrSerialization, err)
	}
	return rec, nil
}

func writeFileAtomic(dir, path string, b []byte) error {
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return errors.Join(ErrStorage, fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Join(ErrStorage, fmt.Errorf("failed to write session file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Join(ErrStorage, fmt.Errorf("failed to write session file: %w", err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Join(ErrStorage, fmt.Errorf("failed to commit session file: %w", err))
	}
	return nil
}
