// Package workbook is the resource backing store: it reads workbook contents
// into snapshots, probes for competing writers and applies the highlight
// mutation with an atomic replace.
package workbook

import (
	"context"
	"errors"
	"time"

	"github.com/bassista/sheetwatch/internal/snapshot"
)

var (
	// ErrResourceUnavailable means the file is missing, unreadable or held by another writer.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrFormat means the file could be read but is not a parsable workbook.
	ErrFormat = errors.New("format error")
	// ErrWriteConflict means the file changed or became locked while a mutation was prepared.
	ErrWriteConflict = errors.New("write conflict")
)

// DefaultFillColor is the light green used for highlighted cells.
const DefaultFillColor = "C6EFCE"

// BackupTimeFormat is appended to "<file>.backup_" when a backup is written.
const BackupTimeFormat = "20060102150405"

// HighlightResult describes the outcome of a mutation pass.
type HighlightResult struct {
	Modified   bool     `json:"modified"`
	Cells      []string `json:"cells,omitempty"` // "Sheet!A1" of every newly highlighted cell
	BackupPath string   `json:"backup_path,omitempty"`
}

// Backend abstracts the workbook storage.
type Backend interface {
	// Capture reads every non-empty cell of every sheet. It never mutates the file.
	Capture(ctx context.Context, path string) (snapshot.Snapshot, error)
	// Highlight marks matching cells on a writable copy, then backs up and
	// atomically replaces the original when anything changed.
	Highlight(ctx context.Context, path string, match Predicate) (HighlightResult, error)
	// Probe reports whether another process currently holds the file locked.
	// The answer is a hint: the lock may change right after the call.
	Probe(path string) (bool, error)
}

// Clock is overridable in tests to get stable backup names.
var Clock = time.Now

func backupPath(path string, at time.Time) string {
	return path + ".backup_" + at.Format(BackupTimeFormat)
}
