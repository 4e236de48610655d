package cache

import (
	"github.com/bassista/sheetwatch/internal/snapshot"
	"github.com/bassista/sheetwatch/internal/workbook"
)

// ReadOnlyStore is the minimal cache API for read-only controllers.
type ReadOnlyStore interface {
	List() []ResourceState
	Get(name string) (ResourceState, error)
	SnapshotOf(name string) (snapshot.Snapshot, error)
	Events(name string, limit int) ([]Record, error)
	ResolveID(name string) (string, error)
	GetLastUpdate() int64
}

// SnapshotStore is the cache API needed by the watcher.
type SnapshotStore interface {
	Register(name, id string) error
	Baseline(id string) snapshot.Snapshot
	Commit(id string, snap snapshot.Snapshot, events []snapshot.ChangeEvent) error
	RecordError(id string, err error)
	RecordHighlight(id string, res workbook.HighlightResult)
}

// AppStore is the cache contract the application container exposes.
type AppStore interface {
	ReadOnlyStore
	SnapshotStore
}

var _ AppStore = (*Store)(nil)
