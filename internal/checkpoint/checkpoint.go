// Package checkpoint archives the persisted state files into timestamped
// directories and restores the newest archive.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lazypower/homeostat/internal/store"
)

// ErrNoCheckpoints is returned by RestoreLatest when the archive root has
// no checkpoints.
var ErrNoCheckpoints = errors.New("no checkpoints")

// nameLayout sorts lexically in time order.
const nameLayout = "20060102_150405.000"

// DefaultEvery is the number of heartbeats between checkpoints.
const DefaultEvery = 5

// DefaultSiblings are the task queues and the semantic memory index
// archived next to the state file.
var DefaultSiblings = []string{"coding_tasks.json", "research_tasks.json", "utility_tasks.json", "semantic_index.json"}

// Config locates the archive root and the live files it covers.
type Config struct {
	Root      string
	StateFile string
	// Siblings are archived alongside StateFile. Base names must be
	// unique across StateFile and Siblings.
	Siblings []string
	Every    int
	// Keep bounds the number of archives; 0 keeps all.
	Keep int
}

// Checkpoint describes one archive directory.
type Checkpoint struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Files   []string  `json:"files"`
	Size    int64     `json:"size"`
}

// Report lists what one save or restore did per file.
type Report struct {
	Checkpoint string            `json:"checkpoint"`
	Copied     []string          `json:"copied"`
	Skipped    []string          `json:"skipped,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
}

func (r *Report) fail(name string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]string)
	}
	r.Failed[name] = err.Error()
}

// Manager owns the heartbeat counter and the archive root.
type Manager struct {
	cfg Config

	mu    sync.Mutex
	beats int
}

// New returns a manager. Every defaults to DefaultEvery.
func New(cfg Config) *Manager {
	if cfg.Every <= 0 {
		cfg.Every = DefaultEvery
	}
	return &Manager{cfg: cfg}
}

// Beat counts one heartbeat and reports whether a checkpoint is due.
func (m *Manager) Beat() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beats++
	if m.beats >= m.cfg.Every {
		m.beats = 0
		return true
	}
	return false
}

func (m *Manager) files() []string {
	out := make([]string, 0, 1+len(m.cfg.Siblings))
	if m.cfg.StateFile != "" {
		out = append(out, m.cfg.StateFile)
	}
	return append(out, m.cfg.Siblings...)
}

// Save copies every live file into a new archive named after now. Missing
// files are skipped and per-file failures are recorded; neither stops the
// remaining files. The error is non-nil only when the archive directory
// itself could not be created.
func (m *Manager) Save(now time.Time) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir, err := m.newArchiveDir(now)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Checkpoint: filepath.Base(dir)}

	for _, src := range m.files() {
		name := filepath.Base(src)
		data, err := os.ReadFile(src)
		if errors.Is(err, fs.ErrNotExist) {
			rep.Skipped = append(rep.Skipped, name)
			continue
		}
		if err != nil {
			slog.Warn("checkpoint read failed", "file", src, "err", err)
			rep.fail(name, err)
			continue
		}
		if isJSON(name) && !json.Valid(data) {
			slog.Warn("checkpoint skipping invalid json", "file", src)
			rep.fail(name, fmt.Errorf("invalid json"))
			continue
		}
		if err := store.WriteFileAtomic(filepath.Join(dir, name), data, 0644); err != nil {
			slog.Warn("checkpoint write failed", "file", name, "err", err)
			rep.fail(name, err)
			continue
		}
		rep.Copied = append(rep.Copied, name)
	}

	slog.Info("checkpoint saved", "name", rep.Checkpoint, "copied", len(rep.Copied), "skipped", len(rep.Skipped))
	m.pruneLocked()
	return rep, nil
}

func (m *Manager) newArchiveDir(now time.Time) (string, error) {
	if err := os.MkdirAll(m.cfg.Root, 0755); err != nil {
		return "", fmt.Errorf("create checkpoint root: %w", err)
	}
	base := filepath.Join(m.cfg.Root, now.Format(nameLayout))
	dir := base
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create checkpoint dir: %w", err)
		}
		dir = fmt.Sprintf("%s-%d", base, i)
	}
}

// RestoreLatest overwrites each live file with its copy from the newest
// archive. Files absent from the archive are skipped.
func (m *Manager) RestoreLatest() (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.listLocked()
	if err != nil {
		return Report{}, err
	}
	if len(list) == 0 {
		return Report{}, ErrNoCheckpoints
	}
	latest := list[0]
	rep := Report{Checkpoint: latest.Name}

	for _, dst := range m.files() {
		name := filepath.Base(dst)
		data, err := os.ReadFile(filepath.Join(latest.Path, name))
		if errors.Is(err, fs.ErrNotExist) {
			rep.Skipped = append(rep.Skipped, name)
			continue
		}
		if err != nil {
			slog.Warn("restore read failed", "file", name, "err", err)
			rep.fail(name, err)
			continue
		}
		if isJSON(name) && !json.Valid(data) {
			slog.Warn("restore skipping invalid json", "file", name)
			rep.fail(name, fmt.Errorf("invalid json"))
			continue
		}
		if err := store.WriteFileAtomic(dst, data, 0644); err != nil {
			slog.Warn("restore write failed", "file", dst, "err", err)
			rep.fail(name, err)
			continue
		}
		rep.Copied = append(rep.Copied, name)
	}

	slog.Info("checkpoint restored", "name", latest.Name, "copied", len(rep.Copied))
	return rep, nil
}

// List returns archives newest first.
func (m *Manager) List() ([]Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

func (m *Manager) listLocked() ([]Checkpoint, error) {
	entries, err := os.ReadDir(m.cfg.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint root: %w", err)
	}

	var out []Checkpoint
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cp := Checkpoint{
			Name:    e.Name(),
			Path:    filepath.Join(m.cfg.Root, e.Name()),
			ModTime: info.ModTime(),
		}
		files, _ := os.ReadDir(cp.Path)
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			cp.Files = append(cp.Files, f.Name())
			if fi, err := f.Info(); err == nil {
				cp.Size += fi.Size()
			}
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

func (m *Manager) pruneLocked() {
	if m.cfg.Keep <= 0 {
		return
	}
	list, err := m.listLocked()
	if err != nil {
		slog.Warn("checkpoint prune: list failed", "err", err)
		return
	}
	for _, cp := range list[min(len(list), m.cfg.Keep):] {
		if err := os.RemoveAll(cp.Path); err != nil {
			slog.Warn("checkpoint prune failed", "name", cp.Name, "err", err)
			continue
		}
		slog.Debug("checkpoint pruned", "name", cp.Name)
	}
}

func isJSON(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}
