package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Writer is an independent writable copy of a workbook. The live file is
// only touched by Commit, through backup + atomic rename.
type Writer struct {
	path     string
	original []byte
	info     os.FileInfo
	tmpPath  string
	file     *excelize.File
	done     bool
}

// OpenForWrite copies path into a temp file next to it and opens the copy.
func OpenForWrite(path string) (*Writer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}

	// the copy keeps the workbook extension: excelize refuses to save anything else
	ext := filepath.Ext(path)
	pattern := "." + strings.TrimSuffix(filepath.Base(path), ext) + ".tmp-*" + ext
	tmp, err := os.CreateTemp(filepath.Dir(path), pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: create temp copy: %v", ErrResourceUnavailable, err)
	}
	tmpPath := tmp.Name()
	_, werr := tmp.Write(original)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: write temp copy: %v", ErrResourceUnavailable, firstErr(werr, cerr))
	}

	// the copy is the workbook that gets edited and saved in place by Commit
	f, err := excelize.OpenFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: open %s: %v", ErrFormat, filepath.Base(path), err)
	}

	return &Writer{path: path, original: original, info: info, tmpPath: tmpPath, file: f}, nil
}

// File exposes the in-memory workbook for modification.
func (w *Writer) File() *excelize.File {
	return w.file
}

// Commit saves the modified copy, writes a timestamped backup of the
// pre-modification content and atomically replaces the original.
// It fails with ErrWriteConflict when the original changed or became locked
// after the copy was taken; the original is then left intact.
func (w *Writer) Commit() (string, error) {
	if w.done {
		return "", fmt.Errorf("writer for %s already closed", filepath.Base(w.path))
	}
	if err := w.file.Save(); err != nil {
		return "", fmt.Errorf("save modified copy: %w", err)
	}
	if err := os.Chmod(w.tmpPath, w.info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("chmod modified copy: %w", err)
	}

	if err := w.checkUnchanged(); err != nil {
		return "", err
	}

	backup := uniqueBackupPath(w.path)
	if err := os.WriteFile(backup, w.original, w.info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	// the lock may have been taken while the backup was written
	if err := w.checkUnchanged(); err != nil {
		os.Remove(backup)
		return "", err
	}

	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(backup)
		return "", fmt.Errorf("%w: replace %s: %v", ErrWriteConflict, filepath.Base(w.path), err)
	}
	w.done = true
	_ = w.file.Close()
	return backup, nil
}

// Discard drops the writable copy. It is a no-op after a successful Commit.
func (w *Writer) Discard() {
	if w.done {
		return
	}
	w.done = true
	_ = w.file.Close()
	os.Remove(w.tmpPath)
}

func (w *Writer) checkUnchanged() error {
	locked, err := probeLock(w.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	if locked {
		return fmt.Errorf("%w: %s became locked", ErrWriteConflict, filepath.Base(w.path))
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	if info.Size() != w.info.Size() || !info.ModTime().Equal(w.info.ModTime()) {
		return fmt.Errorf("%w: %s changed on disk", ErrWriteConflict, filepath.Base(w.path))
	}
	return nil
}

// uniqueBackupPath avoids overwriting a backup taken within the same second.
func uniqueBackupPath(path string) string {
	base := backupPath(path, Clock())
	candidate := base
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
