// Package storage provides file-per-conversation snapshot storage.
//
// Information Hiding:
// - Filename encoding of conversation ids hidden
// - Digest naming for ids too long for one path component hidden
// - Atomic replace (temp file + rename) hidden

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	snapshotExt = ".bin"
	idExt       = ".id"

	// longDir holds snapshots whose escaped name would not fit in one
	// path component. Escaped names never contain '/', so it cannot clash.
	longDir = "long"

	// maxNameLen stays under the common 255-byte component limit with
	// room for the extension.
	maxNameLen = 200
)

// FileBackend stores each snapshot as <dir>/<escaped id>.bin, or as
// <dir>/long/<sha256 of id>.bin with the id beside it in a .id file
// when the escaped id is longer than maxNameLen.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory if needed and returns a backend rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("snapshot directory must be provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the snapshot directory.
func (b *FileBackend) Dir() string {
	return b.dir
}

// Path returns the snapshot file path for id.
func (b *FileBackend) Path(id string) (string, error) {
	path, _, err := b.locate(id)
	return path, err
}

// locate reports the snapshot path for id and whether it lives under longDir.
func (b *FileBackend) locate(id string) (string, bool, error) {
	if id == "" {
		return "", false, ErrInvalidID
	}
	// PathEscape encodes separators, so the name cannot leave dir.
	name := url.PathEscape(id)
	if len(name) <= maxNameLen {
		return filepath.Join(b.dir, name+snapshotExt), false, nil
	}
	return filepath.Join(b.dir, longDir, digest(id)+snapshotExt), true, nil
}

func digest(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

func idPath(path string) string {
	return strings.TrimSuffix(path, snapshotExt) + idExt
}

// Load reads the snapshot for id.
func (b *FileBackend) Load(_ context.Context, id string) ([]byte, bool, error) {
	path, err := b.Path(id)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}
	return data, true, nil
}

// Save replaces the snapshot for id so a crash leaves either the old or
// the new file. Long ids get their .id file first, so List never sees a
// snapshot it cannot name.
func (b *FileBackend) Save(_ context.Context, id string, data []byte) error {
	path, long, err := b.locate(id)
	if err != nil {
		return err
	}
	if long {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
		if err := writeAtomic(idPath(path), []byte(id)); err != nil {
			return err
		}
	}
	return writeAtomic(path, data)
}

// writeAtomic writes data to a temp file beside path and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot for id.
func (b *FileBackend) Delete(_ context.Context, id string) error {
	path, long, err := b.locate(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	if long {
		if err := os.Remove(idPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove snapshot id: %w", err)
		}
	}
	return nil
}

// List returns the ids of all snapshots in the directory.
func (b *FileBackend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshot directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, snapshotExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	long, err := b.listLong()
	if err != nil {
		return nil, err
	}
	return append(ids, long...), nil
}

func (b *FileBackend) listLong() ([]string, error) {
	dir := filepath.Join(b.dir, longDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshot directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		raw, err := os.ReadFile(idPath(filepath.Join(dir, name)))
		if err != nil {
			// Snapshot without a readable id: nothing to name it by.
			continue
		}
		id := string(raw)
		if digest(id)+snapshotExt != name {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var _ SnapshotBackend = (*FileBackend)(nil)
