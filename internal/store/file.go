package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultBackupEvery is how many saves pass between rolling .bak copies.
const DefaultBackupEvery = 33

// FileStore persists snapshots as a single JSON document.
type FileStore struct {
	Path string
	// BackupEvery copies the previous file to Path+".bak" on every Nth
	// save. Zero disables backups.
	BackupEvery int

	mu    sync.Mutex
	saves int
	now   func() time.Time
}

// NewFileStore returns a store for path with the default backup cadence.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, BackupEvery: DefaultBackupEvery, now: time.Now}
}

// DefaultStatePath returns ~/.homeostat/neuro_state.json.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".homeostat", "neuro_state.json"), nil
}

// Load decodes the file over dst. A missing file yields ErrNoSnapshot and
// leaves dst untouched. An undecodable file is renamed to
// <path>.corrupt-<unix> and yields ErrCorruptSnapshot.
func (s *FileStore) Load(dst *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoSnapshot
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.Path, err)
	}

	if err := Decode(data, dst); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.Path, s.clock().Unix())
		if rerr := os.Rename(s.Path, aside); rerr != nil {
			slog.Warn("could not move corrupt state aside", "path", s.Path, "err", rerr)
		} else {
			slog.Warn("corrupt state moved aside", "path", aside)
		}
		return err
	}
	return nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	if s.BackupEvery > 0 && s.saves%s.BackupEvery == 0 {
		if err := s.backup(); err != nil {
			slog.Warn("state backup failed", "path", s.Path, "err", err)
		}
	}

	if err := WriteFileAtomic(s.Path, data, 0644); err != nil {
		return fmt.Errorf("save %s: %w", s.Path, err)
	}
	return nil
}

// backup copies the current on-disk file to Path+".bak".
func (s *FileStore) backup() error {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.Path+".bak", data, 0644)
}

func (s *FileStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
