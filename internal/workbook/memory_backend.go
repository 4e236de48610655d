package workbook

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bassista/sheetwatch/internal/logger"
	"github.com/bassista/sheetwatch/internal/snapshot"
)

// MemoryBackend keeps workbooks in memory. It is used by tests and by the
// "memory" backend setting to exercise the watcher without touching disk.
type MemoryBackend struct {
	mu          sync.RWMutex
	books       map[string]*memoryBook
	captures    map[string]int
	beforeWrite func(path string)
}

type memoryBook struct {
	cells       snapshot.Snapshot
	highlighted map[string]bool // "Sheet!A1"
	locked      bool
	corrupt     bool
	backups     []snapshot.Snapshot
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{books: map[string]*memoryBook{}, captures: map[string]int{}}
}

// Put replaces the content of path, creating it if needed. Highlight marks survive
// for cells that are still present.
func (m *MemoryBackend) Put(path string, content snapshot.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[path]
	if !ok {
		b = &memoryBook{highlighted: map[string]bool{}}
		m.books[path] = b
	}
	b.cells = content.Clone()
	if b.cells == nil {
		b.cells = snapshot.New()
	}
	b.corrupt = false
	logger.WithComponent("memory-backend").Debugf("stored %s with %d cells", path, b.cells.CellCount())
}

// Remove deletes path.
func (m *MemoryBackend) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, path)
}

// SetLocked simulates another process holding path open.
func (m *MemoryBackend) SetLocked(path string, locked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[path]; ok {
		b.locked = locked
	}
}

// SetCorrupt makes the next captures of path fail with ErrFormat until Put is called.
func (m *MemoryBackend) SetCorrupt(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[path]; ok {
		b.corrupt = true
	}
}

// BeforeWrite installs a hook that runs between copy and replace of a Highlight.
func (m *MemoryBackend) BeforeWrite(hook func(path string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeWrite = hook
}

// Highlighted returns the highlighted cells of path as sorted "Sheet!A1" keys.
func (m *MemoryBackend) Highlighted(path string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[path]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(b.highlighted))
	for k := range b.highlighted {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Backups returns the pre-modification contents saved by Highlight.
func (m *MemoryBackend) Backups(path string) []snapshot.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[path]
	if !ok {
		return nil
	}
	out := make([]snapshot.Snapshot, len(b.backups))
	for i, s := range b.backups {
		out[i] = s.Clone()
	}
	return out
}

// Captures counts successful captures of path.
func (m *MemoryBackend) Captures(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.captures[path]
}

func (m *MemoryBackend) Probe(path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[path]
	if !ok {
		return false, fmt.Errorf("%w: %s does not exist", ErrResourceUnavailable, path)
	}
	return b.locked, nil
}

func (m *MemoryBackend) Capture(ctx context.Context, path string) (snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s does not exist", ErrResourceUnavailable, path)
	}
	if b.locked {
		return nil, fmt.Errorf("%w: %s is locked", ErrResourceUnavailable, path)
	}
	if b.corrupt {
		return nil, fmt.Errorf("%w: %s is not a workbook", ErrFormat, path)
	}
	m.captures[path]++
	return b.cells.Clone(), nil
}

func (m *MemoryBackend) Highlight(ctx context.Context, path string, match Predicate) (HighlightResult, error) {
	if err := ctx.Err(); err != nil {
		return HighlightResult{}, err
	}

	m.mu.RLock()
	b, ok := m.books[path]
	if !ok {
		m.mu.RUnlock()
		return HighlightResult{}, fmt.Errorf("%w: %s does not exist", ErrResourceUnavailable, path)
	}
	if b.locked {
		m.mu.RUnlock()
		return HighlightResult{}, fmt.Errorf("%w: %s is locked", ErrResourceUnavailable, path)
	}
	working := b.cells.Clone()
	var cells []string
	for _, sheet := range working.SheetNames() {
		addrs := make([]string, 0, len(working[sheet]))
		for addr := range working[sheet] {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			key := sheet + "!" + addr
			if b.highlighted[key] {
				continue
			}
			if match(Cell{Sheet: sheet, Address: addr, Value: working[sheet][addr]}) {
				cells = append(cells, key)
			}
		}
	}
	hook := m.beforeWrite
	m.mu.RUnlock()

	if len(cells) == 0 {
		return HighlightResult{}, nil
	}
	if hook != nil {
		hook(path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok = m.books[path]
	if !ok || b.locked || !b.cells.Equal(working) {
		return HighlightResult{}, fmt.Errorf("%w: %s changed while highlighting", ErrWriteConflict, path)
	}
	b.backups = append(b.backups, working)
	for _, key := range cells {
		b.highlighted[key] = true
	}
	return HighlightResult{
		Modified:   true,
		Cells:      cells,
		BackupPath: backupPath(path, Clock()),
	}, nil
}
