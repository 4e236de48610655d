package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bassista/sheetwatch/internal/snapshot"
	"github.com/bassista/sheetwatch/internal/workbook"
)

// ErrNotFound is returned for resources the store does not know.
var ErrNotFound = errors.New("resource not found")

// DefaultHistory is the per-resource event ring size used when none is configured.
const DefaultHistory = 200

// Record is a ChangeEvent with the time it was observed.
type Record struct {
	At time.Time `json:"at"`
	snapshot.ChangeEvent
}

// ResourceState is the public view of a watched resource.
type ResourceState struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	HasBaseline bool      `json:"has_baseline"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Sheets      int       `json:"sheets"`
	Cells       int       `json:"cells"`
	Passes      uint64    `json:"passes"`
	Events      uint64    `json:"events"`
	LastCapture time.Time `json:"last_capture,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	LastBackup  string    `json:"last_backup,omitempty"`
	Highlighted int       `json:"highlighted"`
}

type entry struct {
	state   ResourceState
	snap    snapshot.Snapshot
	history []Record // ring buffer
	next    int
	full    bool
}

// Store keeps the last snapshot and the recent events of every resource.
// It is the only place the stored snapshot lives: the watcher reads its
// baseline from here and commits the new one after every pass.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*entry // by resource ID (absolute path)
	byName     map[string]string // name -> ID
	history    int
	lastUpdate int64 // unix millis of the last commit
	now        func() time.Time
}

// NewStore creates an empty store keeping up to history events per resource.
func NewStore(history int) *Store {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Store{
		entries: map[string]*entry{},
		byName:  map[string]string{},
		history: history,
		now:     time.Now,
	}
}

// Register adds a resource. Registering an existing ID is a no-op.
func (s *Store) Register(name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return nil
	}
	if other, ok := s.byName[name]; ok && other != id {
		return fmt.Errorf("resource name %q already used by %s", name, other)
	}
	s.entries[id] = &entry{
		state:   ResourceState{Name: name, Path: id},
		history: make([]Record, s.history),
	}
	s.byName[name] = id
	return nil
}

// Baseline returns a copy of the stored snapshot of id, nil if none was captured yet.
func (s *Store) Baseline(id string) snapshot.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	return e.snap.Clone()
}

// Commit replaces the stored snapshot of id wholesale and appends events to its history.
// A successful commit clears the last error.
func (s *Store) Commit(id string, snap snapshot.Snapshot, events []snapshot.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	now := s.now()
	e.snap = snap.Clone()
	e.state.HasBaseline = e.snap != nil
	e.state.Fingerprint = snapshot.Fingerprint(e.snap)
	e.state.Sheets = len(e.snap)
	e.state.Cells = e.snap.CellCount()
	e.state.Passes++
	e.state.LastCapture = now
	e.state.LastError = ""
	e.state.LastErrorAt = time.Time{}

	for _, ev := range events {
		e.history[e.next] = Record{At: now, ChangeEvent: ev}
		e.next = (e.next + 1) % len(e.history)
		if e.next == 0 {
			e.full = true
		}
		e.state.Events++
	}
	s.lastUpdate = now.UnixMilli()
	return nil
}

// RecordError stores the last processing error of id.
func (s *Store) RecordError(id string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.state.LastError = err.Error()
		e.state.LastErrorAt = s.now()
	}
}

// RecordHighlight stores the outcome of a modifying mutation pass.
func (s *Store) RecordHighlight(id string, res workbook.HighlightResult) {
	if !res.Modified {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.state.Highlighted += len(res.Cells)
		e.state.LastBackup = res.BackupPath
	}
}

// GetLastUpdate returns the time of the last commit in unix millis, 0 if none.
func (s *Store) GetLastUpdate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// List returns the state of every resource ordered by name.
func (s *Store) List() []ResourceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ResourceState, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the state of the resource called name.
func (s *Store) Get(name string) (ResourceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookup(name)
	if err != nil {
		return ResourceState{}, err
	}
	return e.state, nil
}

// SnapshotOf returns a copy of the stored snapshot of the resource called name.
func (s *Store) SnapshotOf(name string) (snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.snap.Clone(), nil
}

// Events returns up to limit of the most recent events of the resource called
// name, oldest first. limit <= 0 returns the whole history.
func (s *Store) Events(name string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}

	ordered := make([]Record, 0, len(e.history))
	if e.full {
		ordered = append(ordered, e.history[e.next:]...)
	}
	ordered = append(ordered, e.history[:e.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered, nil
}

// ResolveID maps a resource name to its ID.
func (s *Store) ResolveID(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return id, nil
}

func (s *Store) lookup(name string) (*entry, error) {
	id, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.entries[id], nil
}
