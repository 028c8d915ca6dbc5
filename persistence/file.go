// persistence/file.go
package persistence

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

	"github.com/hectormc-main/casa-playgroundServer/models"
)

// FileStore keeps the snapshot as a single JSON document on local disk.
type FileStore struct {
	path string

	// mutex serializes writers; lastVersion drops saves that arrive out of order.
	mutex       sync.Mutex
	lastVersion uint64
}

// NewFileStore returns a store writing to path, creating its directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path is the location of the snapshot file.
func (f *FileStore) Path() string {
	return f.path
}

// fileSnapshot is the on-disk layout. Parts stay raw so each one decodes on its own.
type fileSnapshot struct {
	Version  uint64          `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Features json.RawMessage `json:"features"`
	Game     json.RawMessage `json:"game"`
}

// Load reads and decodes the snapshot file. A part that fails to decode is left out so
// the other part still loads.
func (f *FileStore) Load(ctx context.Context) (*models.Snapshot, error) {
	snapshot, err := runBounded(ctx, func() (*models.Snapshot, error) {
		data, err := os.ReadFile(f.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, ErrNoSnapshot
			}
			return nil, fmt.Errorf("read snapshot: %w", err)
		}

		var stored fileSnapshot
		if err := json.Unmarshal(data, &stored); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}

		records := []record{{key: models.KeyGame, version: stored.Version}}
		if len(stored.Game) > 0 && string(stored.Game) != "null" {
			records[0].data = string(stored.Game)
		}
		if len(stored.Features) > 0 && string(stored.Features) != "null" {
			records = append(records, record{key: models.KeyFeatures, data: string(stored.Features), version: stored.Version})
		}
		snapshot, err := joinRecords(records)
		if err != nil {
			return nil, err
		}
		snapshot.SavedAt = stored.SavedAt
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}

	// only a load the caller received may raise the floor
	f.mutex.Lock()
	f.lastVersion = max(f.lastVersion, snapshot.Version)
	f.mutex.Unlock()
	return snapshot, nil
}

// Save writes the snapshot to a temporary file next to the target and renames it into
// place, so concurrent readers see either the old or the new document.
func (f *FileStore) Save(ctx context.Context, snapshot *models.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = runBounded(ctx, func() (*models.Snapshot, error) {
		f.mutex.Lock()
		defer f.mutex.Unlock()

		if snapshot.Version != 0 && snapshot.Version <= f.lastVersion {
			return nil, nil
		}
		if err := writeAtomic(f.path, data); err != nil {
			return nil, err
		}
		f.lastVersion = snapshot.Version
		return nil, nil
	})
	return err
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Close is a no-op; the file store holds no open handles between calls.
func (f *FileStore) Close() error {
	return nil
}

// runBounded runs fn in the background and stops waiting once ctx is done. Disk I/O
// cannot be interrupted, so an abandoned call still finishes on its own.
func runBounded(ctx context.Context, fn func() (*models.Snapshot, error)) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		snapshot *models.Snapshot
		err      error
	}
	done := make(chan result, 1)
	go func() {
		s, err := fn()
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		return r.snapshot, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
